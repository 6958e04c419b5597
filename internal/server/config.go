package server

import (
	"github.com/breakingcid/scand/internal/dispatch"
	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/scanner"
)

// Config wires a Server. Zero values get development defaults in NewServer.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// DatabasePath is the SQLite file backing the store.
	DatabasePath string

	// WorkerAPIKey is the shared secret for the worker surface. When empty
	// the worker routes reject every request.
	WorkerAPIKey string

	// RemoteWorkers, when true, disables local dispatch: created scans stay
	// pending until a remote worker claims them.
	RemoteWorkers bool

	// Scanner overrides the external scanner collaborator. Defaults to an
	// ExecScanner built from ScannerCfg.
	Scanner scanner.Scanner

	// ScannerCfg configures the default ExecScanner.
	ScannerCfg scanner.ExecConfig

	// DispatchCfg tunes local-dispatch retries.
	DispatchCfg dispatch.Config

	// Logger receives server and component logs. Defaults to a stdout
	// JSON logger.
	Logger logging.Logger
}
