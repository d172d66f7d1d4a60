package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loopwire/termsession/src/config"
	"github.com/loopwire/termsession/src/hooks"
	"github.com/loopwire/termsession/src/manager"
	"github.com/loopwire/termsession/src/mcpserver"
	"github.com/loopwire/termsession/src/restapi"
	"github.com/loopwire/termsession/src/toolsurface"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	port := flag.Int("port", 0, "Port to listen on (overrides config/env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	hookEngine, err := hooks.New(cfg.HookRules())
	if err != nil {
		logrus.Fatalf("failed to build hook engine: %v", err)
	}

	stopWatch := make(chan struct{})
	if *configPath != "" {
		if err := config.WatchHookFile(*configPath, hookEngine, stopWatch); err != nil {
			logrus.WithError(err).Warn("hook config reload watcher not started")
		}
	}

	mgr := manager.New(manager.Defaults{
		Shell:           cfg.Terminal.DefaultShell,
		Cols:            80,
		Rows:            24,
		SpinnerCompact:  cfg.Spinner.Enabled,
		SpinnerThrottle: time.Duration(cfg.Spinner.ThrottleMs) * time.Millisecond,
		BufferLinesCap:  cfg.Terminal.MaxBufferSize,
		BufferBytesCap:  cfg.Terminal.MaxBufferBytes,
		IdleTimeout:     time.Duration(cfg.Terminal.SessionTimeoutMs) * time.Millisecond,
	}, hookEngine)

	surface := toolsurface.New(mgr)

	router := restapi.SetupRouter(surface, restapi.Options{CORS: cfg.Server.CORS, EnableProcessingTime: true})

	mcpSrv, err := mcpserver.NewServer(surface)
	if err != nil {
		logrus.Fatalf("failed to create MCP server: %v", err)
	}
	mcpSrv.Mount(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logrus.Infof("terminal session manager listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logrus.Info("shutting down")
	close(stopWatch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	mgr.Shutdown(ctx)
}
