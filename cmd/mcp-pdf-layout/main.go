package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-pdf-layout/internal/config"
	"github.com/a3tai/mcp-pdf-layout/internal/logging"
	"github.com/a3tai/mcp-pdf-layout/internal/mcp"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging installs the process logger for the configured mode. Stdout
// carries the protocol in stdio mode, so logs go to w (stderr) and only when
// debugging.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	var l *slog.Logger
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		l = slog.New(slog.DiscardHandler)
	} else {
		l = logging.New(w, cfg.LogLevel)
	}
	logging.SetLogger(l)
	return l
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) int {
	log := logging.Logger()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()

		if err := <-serverErrCh; err != nil {
			log.Error("server shutdown with error", slog.String("error", err.Error()))
			return 1
		}

	case err := <-serverErrCh:
		if err != nil {
			log.Error("server error", slog.String("error", err.Error()))
			return 1
		}
	}

	log.Info("server stopped")
	return 0
}

// runStdioMode handles stdio mode execution. The parent process owns our
// lifecycle; we exit when stdin closes.
func runStdioMode(ctx context.Context, server *mcp.Server) int {
	if err := server.Run(ctx); err != nil {
		logging.Logger().Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// wantsVersion reports whether args ask for the version.
func wantsVersion(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

func main() {
	if wantsVersion(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := setupLogging(cfg, os.Stderr)

	if version != "dev" {
		cfg.Version = version
	}
	log.Debug("starting", slog.String("config", cfg.String()))

	services, err := mcp.NewServices(cfg)
	if err != nil {
		log.Error("failed to create backends", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server, err := mcp.NewServer(cfg, services)
	if err != nil {
		log.Error("failed to create MCP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var code int
	if cfg.IsServerMode() {
		code = runServerMode(ctx, cancel, server)
	} else {
		code = runStdioMode(ctx, server)
	}
	cancel()
	os.Exit(code)
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP PDF Layout\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
