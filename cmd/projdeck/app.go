package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kalambet/projdeck/internal/catalog"
	"github.com/kalambet/projdeck/internal/config"
	"github.com/kalambet/projdeck/internal/launcher"
	"github.com/kalambet/projdeck/internal/storage"
)

// app is the wired-up catalog for one command invocation.
type app struct {
	cfg   config.Config
	store storage.Store
	vm    *catalog.ViewModel
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	l := launcher.New(
		launcher.WithEditor(cfg.Editor.Command),
		launcher.WithLogger(slog.Default()),
	)
	vm, err := catalog.Load(store, l, catalog.WithLogger(slog.Default()))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return &app{cfg: cfg, store: store, vm: vm}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// withApp runs fn against a freshly opened catalog and closes it afterwards.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", s)
	}
	return id, nil
}
