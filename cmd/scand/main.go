// Command scand starts the scan orchestration server.
// Usage: scand [-config config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breakingcid/scand/internal/config"
	"github.com/breakingcid/scand/internal/dispatch"
	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/scanner"
	"github.com/breakingcid/scand/internal/server"
)

func main() {
	cfgFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logging.NewStdoutLogger("scand")

	srv, err := server.NewServer(server.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		DatabasePath:  cfg.Database.Path,
		WorkerAPIKey:  cfg.Server.WorkerAPIKey,
		RemoteWorkers: cfg.Server.RemoteWorkers,
		ScannerCfg: scanner.ExecConfig{
			Interpreter: cfg.Scanner.Interpreter,
			ModulesDir:  cfg.Scanner.ModulesDir,
			Timeout:     cfg.Scanner.Timeout,
			EnumTimeout: cfg.Scanner.EnumTimeout,
		},
		DispatchCfg: dispatch.Config{MaxRetries: cfg.Scanner.MaxRetries},
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("starting server: %v", err)
	}
	defer srv.Close()

	httpSrv := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: cfg.Server.ListenAddr})
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
