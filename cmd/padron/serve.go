package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/padron/pkg/api"
	"github.com/hazyhaar/padron/pkg/chassis"
	"github.com/hazyhaar/padron/pkg/importer"
)

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.close()
	logger := a.logger

	apiServer := api.NewServer(a.pipeline, a.catalog, a.metrics, logger)
	mcpSrv := server.NewMCPServer("padron", version, server.WithToolCapabilities(false))
	apiServer.RegisterMCPTools(mcpSrv)

	srv, err := chassis.New(chassis.Config{
		Addr:       a.cfg.Addr,
		CertFile:   a.cfg.TLS.CertFile,
		KeyFile:    a.cfg.TLS.KeyFile,
		SelfSigned: a.cfg.TLS.SelfSigned,
		Handler:    apiServer.Router(),
		MCPServer:  mcpSrv,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// SIGHUP: drop cached tables.
	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, purging cache")
			if err := a.cache.Purge(); err != nil {
				logger.Error("purge failed", "error", err)
			}
		}
	}()

	if a.cfg.CheckInterval > 0 {
		checker := importer.NewChecker(a.catalog, logger, a.cfg.CheckInterval)
		checker.OnResult = a.metrics.ObserveCheck
		go checker.Start(ctx)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	a := setup(*cfgPath)
	defer a.close()

	srv := server.NewMCPServer("padron", version, server.WithToolCapabilities(false))
	api.NewServer(a.pipeline, a.catalog, a.metrics, a.logger).RegisterMCPTools(srv)

	a.logger.Info("serving MCP over stdio")
	if err := server.ServeStdio(srv); err != nil {
		a.logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
