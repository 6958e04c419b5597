// Command worker starts a remote scan worker that polls a scand server for
// pending jobs, executes them with the local scanner modules and reports
// results back.
// Usage: worker [-config config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/breakingcid/scand/internal/config"
	"github.com/breakingcid/scand/internal/scanner"
	"github.com/breakingcid/scand/internal/worker"
)

func main() {
	cfgFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	agent := worker.NewAgent(worker.Config{
		ServerURL:    cfg.Worker.ServerURL,
		APIKey:       cfg.Server.WorkerAPIKey,
		WorkerID:     cfg.Worker.ID,
		PollInterval: cfg.Worker.PollInterval,
		MaxRetries:   cfg.Scanner.MaxRetries,
		ScannerCfg: scanner.ExecConfig{
			Interpreter: cfg.Scanner.Interpreter,
			ModulesDir:  cfg.Scanner.ModulesDir,
			Timeout:     cfg.Scanner.Timeout,
			EnumTimeout: cfg.Scanner.EnumTimeout,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker error: %v", err)
	}
}
