// Package launcher starts OS helpers for a project folder: the file manager, a
// code editor, and the project's own run script.
package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	// ErrNotFound means the folder or the expected script does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLaunchFailure means the OS refused to start the process.
	ErrLaunchFailure = errors.New("launch failed")
)

// Launcher starts processes and does not wait for them. Exits are logged.
type Launcher struct {
	goos     string
	editor   []string
	lookPath func(file string) (string, error)
	getenv   func(key string) string
	start    func(cmd *exec.Cmd) error
	logger   *slog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithEditor sets the editor command line (e.g. "code --new-window"). The folder
// path is appended as the last argument. Empty keeps auto-detection.
func WithEditor(command string) Option {
	return func(l *Launcher) { l.editor = strings.Fields(command) }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// New returns a Launcher for the running OS.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
		logger:   slog.Default(),
	}
	l.start = l.startDetached
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// startDetached starts cmd and reaps it in the background.
func (l *Launcher) startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		err := cmd.Wait()
		if err != nil {
			l.logger.Warn("process exited with error", "cmd", cmd.Path, "dir", cmd.Dir, "error", err)
			return
		}
		l.logger.Debug("process exited", "cmd", cmd.Path, "dir", cmd.Dir)
	}()
	return nil
}

func (l *Launcher) run(dir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLaunchFailure, name, err)
	}
	l.logger.Debug("process started", "cmd", name, "args", args, "dir", dir)
	return nil
}

func checkDir(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no folder set", ErrNotFound)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: folder %q", ErrNotFound, path)
	}
	return nil
}

// OpenFolder shows path in the OS file manager.
func (l *Launcher) OpenFolder(path string) error {
	if err := checkDir(path); err != nil {
		return err
	}
	switch l.goos {
	case "windows":
		return l.run("", "explorer", path)
	case "darwin":
		return l.run("", "open", path)
	default:
		for _, fm := range []string{"xdg-open", "nautilus", "dolphin"} {
			if bin, err := l.lookPath(fm); err == nil {
				return l.run("", bin, path)
			}
		}
		return fmt.Errorf("%w: no file manager found (tried xdg-open, nautilus, dolphin)", ErrLaunchFailure)
	}
}

// OpenInEditor opens path in the configured editor or in a detected VS Code
// install, and falls back to OpenFolder when none is found.
func (l *Launcher) OpenInEditor(path string) error {
	if err := checkDir(path); err != nil {
		return err
	}
	if len(l.editor) > 0 {
		args := append(append([]string{}, l.editor[1:]...), path)
		return l.run("", l.editor[0], args...)
	}
	switch l.goos {
	case "windows":
		if exe := l.findVSCodeWindows(); exe != "" {
			return l.run("", exe, path)
		}
	case "darwin":
		return l.run("", "open", "-a", "Visual Studio Code", path)
	default:
		for _, c := range []string{"code", "code-insiders", "codium"} {
			if bin, err := l.lookPath(c); err == nil {
				return l.run("", bin, path)
			}
		}
	}
	l.logger.Debug("no code editor found, opening folder instead", "path", path)
	return l.OpenFolder(path)
}

func (l *Launcher) findVSCodeWindows() string {
	candidates := []struct{ env, rel string }{
		{"LOCALAPPDATA", filepath.Join("Programs", "Microsoft VS Code", "Code.exe")},
		{"ProgramFiles", filepath.Join("Microsoft VS Code", "Code.exe")},
		{"ProgramFiles(x86)", filepath.Join("Microsoft VS Code", "Code.exe")},
	}
	for _, c := range candidates {
		base := l.getenv(c.env)
		if base == "" {
			continue
		}
		full := filepath.Join(base, c.rel)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full
		}
	}
	return ""
}

// ScriptName is the per-project launch script looked up in the folder.
func (l *Launcher) ScriptName() string {
	if l.goos == "windows" {
		return "run.bat"
	}
	return "run.sh"
}

// RunProjectScript starts run.bat (Windows) or run.sh (elsewhere) with the
// project folder as working directory.
func (l *Launcher) RunProjectScript(path string) error {
	if err := checkDir(path); err != nil {
		return err
	}
	script := filepath.Join(path, l.ScriptName())
	info, err := os.Stat(script)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: script %q", ErrNotFound, script)
	}

	if l.goos == "windows" {
		return l.run(path, "cmd", "/C", script)
	}
	if info.Mode().Perm()&0o100 == 0 {
		if err := os.Chmod(script, info.Mode().Perm()|0o755); err != nil {
			l.logger.Warn("could not mark script executable", "script", script, "error", err)
		}
	}
	return l.run(path, "/bin/bash", script)
}
