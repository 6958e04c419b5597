package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
)

// moduleScripts maps each concrete technique to its scanner module.
// Comprehensive scans never reach the exec layer; the dispatcher fans them
// out to the four concrete techniques first.
var moduleScripts = map[model.ScanType]string{
	model.ScanHTTPSmuggling: "http_smuggling.py",
	model.ScanSSRF:          "ssrf_scanner.py",
	model.ScanXSS:           "xss_scanner.py",
	model.ScanSubdomainEnum: "subdomain_enum.py",
}

// ExecConfig configures the subprocess scanner runner.
type ExecConfig struct {
	// Interpreter is the executable that runs the modules, e.g. "python3".
	Interpreter string

	// ModulesDir holds the per-technique module scripts.
	ModulesDir string

	// Timeout bounds single-technique invocations.
	Timeout time.Duration

	// EnumTimeout bounds enumeration-class invocations (subdomain_enum).
	EnumTimeout time.Duration
}

// DefaultExecConfig mirrors the production timeouts: 120s per technique,
// 180s for enumeration.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Interpreter: "python3",
		ModulesDir:  "modules",
		Timeout:     120 * time.Second,
		EnumTimeout: 180 * time.Second,
	}
}

// ExecScanner invokes scanner modules as subprocesses with an argument
// vector. The target is never interpolated into a shell string.
type ExecScanner struct {
	cfg    ExecConfig
	logger logging.Logger
}

// NewExecScanner builds an ExecScanner, filling zero config values with
// defaults.
func NewExecScanner(cfg ExecConfig, logger logging.Logger) *ExecScanner {
	def := DefaultExecConfig()
	if cfg.Interpreter == "" {
		cfg.Interpreter = def.Interpreter
	}
	if cfg.ModulesDir == "" {
		cfg.ModulesDir = def.ModulesDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.EnumTimeout <= 0 {
		cfg.EnumTimeout = def.EnumTimeout
	}
	return &ExecScanner{cfg: cfg, logger: logger}
}

// TimeoutFor returns the invocation bound for a scan type.
func (e *ExecScanner) TimeoutFor(scanType model.ScanType) time.Duration {
	if scanType == model.ScanSubdomainEnum {
		return e.cfg.EnumTimeout
	}
	return e.cfg.Timeout
}

// Run executes the module for scanType and parses its stdout. The context
// plus the per-type timeout bound the subprocess; on expiry the process is
// killed and the error wraps model.ErrScannerFailure.
func (e *ExecScanner) Run(ctx context.Context, scanType model.ScanType, target, scope string) ([]model.Finding, error) {
	script, ok := moduleScripts[scanType]
	if !ok {
		return nil, fmt.Errorf("no scanner module for type %q: %w", scanType, model.ErrScannerFailure)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.TimeoutFor(scanType))
	defer cancel()

	args := []string{filepath.Join(e.cfg.ModulesDir, script), target}
	if scope != "" {
		args = append(args, "--scope", scope)
	}

	cmd := exec.CommandContext(runCtx, e.cfg.Interpreter, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		// Modules write verbose progress to stderr; keep it observable.
		e.logger.Debug("scanner stderr",
			logging.Field{Key: "scan_type", Value: string(scanType)},
			logging.Field{Key: "stderr", Value: stderr.String()})
	}
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("scanner %s timed out after %s: %w", scanType, e.TimeoutFor(scanType), model.ErrScannerFailure)
		}
		return nil, fmt.Errorf("scanner %s: %v: %w", scanType, err, model.ErrScannerFailure)
	}

	return ParseResult(stdout.Bytes())
}
