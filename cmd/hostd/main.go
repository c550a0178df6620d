package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/browserhost/internal/config"
	"github.com/rpggio/browserhost/internal/engine/rodengine"
	"github.com/rpggio/browserhost/internal/host"
	"github.com/rpggio/browserhost/internal/ipc"
	"github.com/rpggio/browserhost/internal/launch"
	"github.com/rpggio/browserhost/internal/mcp"
	"github.com/rpggio/browserhost/internal/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("BROWSERHOST_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := newLogger(cfg.Log.Level, logWriter)
	defer func() { _ = logger.Sync() }()

	args, err := launch.Parse(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", zap.Error(err))
		os.Exit(2)
	}

	restarted := os.Getenv(restartEnv)
	alongside := restarted == restartAlongside
	if cfg.Transport.Mode != "stdio" && restarted == "" {
		outcome, err := forwardToRunning(cfg.Data.Root, os.Args)
		if err != nil {
			logger.Warn("running instance did not take the launch", zap.Error(err))
		}
		switch outcome {
		case handedOver:
			logger.Info("handed arguments to running instance")
			return
		case runAlongside:
			logger.Info("running alongside existing instance")
			alongside = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-stop:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	engine := rodengine.New(rodengine.Config{
		DebuggerURL: cfg.Engine.DebuggerURL,
		Bin:         cfg.Engine.Bin,
		Headless:    cfg.Engine.Headless,
		DownloadDir: filepath.Join(cfg.Downloads.Dir, ".partial"),
	}, logger)

	app, err := host.New(ctx, host.Options{
		Config:    cfg,
		Args:      args,
		Engine:    engine,
		Restarter: &execRestarter{logger: logger, stop: cancel, alongside: alongside},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to start host", zap.Error(err))
		os.Exit(1)
	}
	defer app.Close()

	engine.SetHooks(rodengine.Hooks{
		KeyPressed:     app.HandleKey,
		WindowOpened:   app.HandleWindowOpen,
		OrganicSession: app.HandleOrganicSession,
	})

	handler := ipc.NewHandler(app, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, logger, app, handler, cfg.Updates.CurrentVersion)
	} else {
		runHTTPMode(ctx, logger, app, handler, cfg, alongside)
	}
	cancel()

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("host stopped", zap.Error(err))
		os.Exit(1)
	}
}

func runStdioMode(ctx context.Context, logger *zap.Logger, app *host.App, handler *ipc.Handler, version string) {
	logger.Info("starting stdio transport")

	server := mcp.NewServer(mcp.Config{Handler: handler, Version: version, Logger: logger})
	go mcp.ForwardEvents(ctx, server, app.Events(), logger)

	// Run blocks until stdin closes or context is canceled
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", zap.Error(err))
	}
}

// runHTTPMode serves the IPC API over HTTP. A host running alongside another
// takes an ephemeral port and leaves the instance file to the first host.
func runHTTPMode(ctx context.Context, logger *zap.Logger, app *host.App, handler *ipc.Handler, cfg config.Config, alongside bool) {
	router := transport.NewServer(transport.Options{
		Handler: handler,
		Hub:     app.Events(),
		Token:   cfg.Transport.Token,
		Logger:  logger,
	})

	port := cfg.Server.Port
	if alongside {
		port = 0
	}
	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(port))
	ln, err := listen(ctx, addr)
	if err != nil {
		logger.Error("listen failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	httpServer := &http.Server{Handler: router}

	if !alongside {
		instance := instanceFile(cfg.Data.Root)
		if err := writeInstance(instance, instanceInfo{
			Addr:  ln.Addr().String(),
			Token: cfg.Transport.Token,
			PID:   os.Getpid(),
		}); err != nil {
			logger.Warn("instance file not written", zap.Error(err))
		}
		defer os.Remove(instance)
	}

	go func() {
		logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	waitForShutdown(ctx, logger, httpServer)
}

// listen retries briefly so a restarted host can take over the port of the
// process it replaces.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lastErr error
	for range 20 {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return nil, lastErr
}

func waitForShutdown(ctx context.Context, logger *zap.Logger, server *http.Server) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newLogger(level string, w io.Writer) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)
	return zap.New(core, zap.AddCaller()).Named("hostd")
}
