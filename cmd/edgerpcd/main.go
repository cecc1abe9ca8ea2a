package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/edgerpc/internal/config"
	"github.com/yourusername/edgerpc/internal/core"
	"github.com/yourusername/edgerpc/internal/examples/userservice"
	"github.com/yourusername/edgerpc/internal/server"
	"github.com/yourusername/edgerpc/internal/transport/ws"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "start":
		serve()
	case "version":
		fmt.Printf("edgerpcd v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve() {
	cfgPath := "edgerpcd.yaml"
	if len(os.Args) > 2 {
		cfgPath = os.Args[2]
	}

	logger, startupCloser := setupLogger("info", "json", "stdout")
	if startupCloser != nil {
		defer startupCloser.Close()
	}
	logger.Info("edgerpcd starting", "version", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if startupCloser != nil {
		_ = startupCloser.Close()
		startupCloser = nil
	}
	logger, logCloser := setupLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if logCloser != nil {
		defer logCloser.Close()
	}

	metrics := server.NewMetrics()

	api := core.New(core.Config{
		FramePoolBlockSize: cfg.FramePool.BlockSize,
		MaxServices:        cfg.Router.MaxServices,
		Logger:             logger,
		Metrics:            metrics,
	})

	svc := userservice.New(api, 0)
	if _, err := api.RegisterService("UserService", svc, svc.Dispatch); err != nil {
		logger.Error("failed to register UserService", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var wsTransport *ws.Transport
	if cfg.WebSocket.Enabled {
		wsTransport = ws.NewOwned(cfg.WebSocket.Address, cfg.WebSocket.Path, logger)
		if err := api.AddTransport(wsTransport); err != nil {
			logger.Error("failed to register websocket transport", "error", err)
			os.Exit(1)
		}
		if err := wsTransport.Start(ctx, func(frame []byte, _ any) { api.HandleRequest(frame) }, nil); err != nil {
			logger.Error("failed to start websocket transport", "error", err)
			os.Exit(1)
		}
		logger.Info("websocket transport listening", "address", cfg.WebSocket.Address, "path", cfg.WebSocket.Path)
	}

	if cfg.Serial.Enabled {
		logger.Warn("serial transport enabled in config but no UART driver is wired into this binary; " +
			"an embedding application must call serial.Transport.FeedPacket/FeedRawPacket itself")
	}
	if cfg.BLE.Enabled {
		logger.Warn("ble transport enabled in config but no GATT peripheral driver is wired into this binary; " +
			"an embedding application must supply one satisfying ble.GattPeripheral")
	}

	var healthSrv *server.Server
	if cfg.Metrics.Enabled {
		health := server.NewHealthHandler(statusAdapter{api})
		mux := server.NewRouter(health, metrics, cfg.Metrics.Path)
		healthSrv = server.New(cfg.Metrics.Address, mux, logger)
		go func() {
			if err := healthSrv.Start(); err != nil {
				logger.Error("health/metrics server error", "error", err)
			}
		}()
		logger.Info("health/metrics server listening", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("edgerpcd ready")
	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if wsTransport != nil {
		if err := wsTransport.Stop(shutdownCtx); err != nil {
			logger.Error("websocket transport shutdown error", "error", err)
		}
	}
	if healthSrv != nil {
		if err := healthSrv.Stop(shutdownCtx); err != nil {
			logger.Error("health/metrics server shutdown error", "error", err)
		}
	}
	api.Deinit()

	logger.Info("edgerpcd stopped")
}

// statusAdapter exposes core.Api's registered transport count as
// server.Status, so package server does not depend on package core.
type statusAdapter struct {
	api *core.Api
}

func (s statusAdapter) TransportCount() int {
	return s.api.TransportCount()
}

func setupLogger(level, format, output string) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writer, closer := resolveLogOutput(output)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	return slog.New(handler), closer
}

func resolveLogOutput(output string) (io.Writer, io.Closer) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stdout, nil
		}
		return f, f
	}
}

func printUsage() {
	fmt.Println(`edgerpcd - RPC core daemon for resource-constrained networked devices

Usage:
  edgerpcd <command> [options]

Commands:
  serve [config]   Start the daemon (default config: edgerpcd.yaml)
  start [config]   Alias for serve
  version          Show version
  help             Show this help

Signals:
  SIGINT/SIGTERM   Graceful shutdown

Examples:
  edgerpcd serve
  edgerpcd serve /etc/edgerpcd/edgerpcd.yaml
  edgerpcd version`)
}
