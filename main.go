// Command assay manages local evaluation projects: manifests, eval
// definitions and the run/sample/annotation store. `assay serve` exposes the
// same operations as MCP tools.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GhostScientist/assay/internal/config"
	"github.com/GhostScientist/assay/internal/logging"
	"github.com/GhostScientist/assay/internal/server"
	"github.com/GhostScientist/assay/internal/ui"
	"github.com/GhostScientist/assay/internal/workspace"
)

// version is overridden at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	if err := execute(ctx, a, newRootCmd(a)); err != nil {
		os.Exit(1)
	}
}

// execute runs root and releases what init built, whether or not the
// command failed.
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	defer a.close()
	return root.ExecuteContext(ctx)
}

// app is the state built once per invocation in PersistentPreRunE.
type app struct {
	configPath string
	jsonOut    bool
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	ws     *workspace.Service
	ui     ui.UI

	closed bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "assay",
		Short: "Local evaluation workspace",
		Long: `assay manages evaluation projects on the local filesystem.

A project is a directory with an Assay.toml manifest, eval definitions under
evals/, and a SQLite store of runs, samples and annotations in .assay/assay.db.

Configuration is read from ~/.config/assay/config.yaml and ASSAY_* environment
variables (ASSAY_LOG_LEVEL=debug sets log.level).`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+")")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newProjectCmd(a),
		newEvalsCmd(a),
		newSearchCmd(a),
		newRunsCmd(a),
		newAnnotateCmd(a),
		newStoreCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.ws = workspace.NewDefault(cfg.Workspace.Workers, logger)
	a.ui = ui.New(cmd.OutOrStdout())
	logger.Debug("config loaded",
		zap.String("projects_root", cfg.Workspace.ProjectsRoot),
		zap.Int("workers", cfg.Workspace.Workers))
	return nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.ws != nil {
		a.ws.Wait()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// printJSON writes v indented, the same shape MCP tools return.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(a *app) *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run an MCP server exposing project, eval and run-store tools.

Examples:
  # Serve over stdio (for MCP clients that spawn the binary)
  assay serve

  # Serve streamable HTTP
  assay serve --transport http --addr localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport == "" {
				transport = a.cfg.Server.Transport
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(a.ws, a.cfg.Workspace.ProjectsRoot)
			return runServer(cmd.Context(), a.logger, srv, transport, addr)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "transport mode: stdio or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for --transport http (default from config)")
	return cmd
}

func runServer(ctx context.Context, logger *zap.Logger, srv *mcp.Server, transport, addr string) error {
	switch transport {
	case "stdio":
		logger.Info("assay MCP server starting", zap.String("transport", "stdio"))
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "http":
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.Info("assay MCP server listening", zap.String("transport", "http"), zap.String("addr", addr))
			errc <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown transport %q (use stdio or http)", transport)
	}
}
