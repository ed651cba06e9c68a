package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/projdeck/internal/api"
	"github.com/kalambet/projdeck/internal/catalog"
	"github.com/kalambet/projdeck/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP (foreground)",
	Long: `Serve the catalog over a local HTTP API until interrupted.

With --mcp the MCP tool server also runs on stdin/stdout, and the process
exits when the MCP client disconnects. The catalog is saved on shutdown.

The API token is read from PROJDECK_API_TOKEN. When unset, a token is
generated for this run and printed to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")
		return runServer(withMCP, port)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running projdeck server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show projdeck server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Int("port", 0, "override server.port")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "projdeck.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// resolveToken returns the configured token, or a fresh one and true when none is set.
func resolveToken(configured string) (string, bool) {
	if configured != "" {
		return configured, false
	}
	return uuid.New().String(), true
}

type serveOptions struct {
	addr     string
	maxConns int
	token    string
	mcp      bool
	stdin    io.Reader
	stdout   io.Writer
	// ready is called with the bound address once the listener is up.
	ready func(net.Addr)
}

func runServer(withMCP bool, port int) error {
	fmt.Fprintf(os.Stderr, "projdeck version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if port > 0 {
		cfg.Server.Port = port
	}

	token, generated := resolveToken(cfg.Server.Token)
	if generated {
		printWarning("PROJDECK_API_TOKEN is not set; using a token for this run only")
		printStatus("Token", "%s", token)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, a.vm, serveOptions{
		addr:     fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		maxConns: cfg.Server.MaxConns,
		token:    token,
		mcp:      withMCP,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		ready: func(addr net.Addr) {
			fmt.Fprintf(os.Stderr, "projdeck listening on %s\n", addr)
		},
	})
}

// serve runs the HTTP API, and optionally MCP on stdio, until ctx is done or
// the MCP client disconnects. It always ends with a catalog checkpoint.
func serve(ctx context.Context, vm *catalog.ViewModel, opts serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.addr, err)
	}
	if opts.maxConns > 0 {
		ln = netutil.LimitListener(ln, opts.maxConns)
	}

	srv := &http.Server{
		Handler:           api.NewAppHandler(api.AppDeps{Catalog: vm, Token: opts.token}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if opts.ready != nil {
			opts.ready(ln.Addr())
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if opts.mcp {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Catalog: vm, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			err := stdioSrv.Listen(gctx, opts.stdin, opts.stdout)
			// Client gone: take the HTTP side down too.
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if saveErr := vm.SaveAll(); saveErr != nil {
		return errors.Join(err, fmt.Errorf("saving catalog on shutdown: %w", saveErr))
	}
	slog.Info("catalog saved on shutdown", "projects", len(vm.Projects()))
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("projdeck is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop projdeck (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to projdeck (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	reportStatus(ctx, client)

	printStatus("Backend", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config", "%s", config.FilePath())
	return nil
}

// reportStatus prints server health and, when the token is accepted, the
// catalog size.
func reportStatus(ctx context.Context, client *apiClient) {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return
	}
	printStatus("Server", "running at %s", client.baseURL)

	if client.token == "" {
		printStatus("Projects", "unknown (set PROJDECK_API_TOKEN)")
		return
	}
	resp, err = client.get(ctx, "/projects/all")
	if err != nil {
		return
	}
	var projects []catalog.Snapshot
	if err := decodeJSON(resp, &projects); err != nil {
		printStatus("Projects", "unavailable (%v)", err)
		return
	}
	printStatus("Projects", "%d", len(projects))
}
