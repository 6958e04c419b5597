// Package scanner is the boundary to the external scanning collaborator.
// The orchestration core never implements a scanning technique itself; it
// hands (scanType, target, scope) to a Scanner and gets back a validated
// finding list or an error.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/breakingcid/scand/internal/model"
)

// Scanner runs one scanning technique against a target. Implementations
// must be safe to retry: a failed invocation leaves no state behind.
type Scanner interface {
	Run(ctx context.Context, scanType model.ScanType, target, scope string) ([]model.Finding, error)
}

// resultEnvelope is the fixed wire schema scanner modules must emit on
// stdout. Anything that does not decode into it is a scanner failure, not
// an unchecked field access.
type resultEnvelope struct {
	Success         bool           `json:"success"`
	Vulnerabilities []findingInput `json:"vulnerabilities"`
	Error           string         `json:"error"`
}

type findingInput struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Payload     string `json:"payload"`
	Evidence    string `json:"evidence"`
	Remediation string `json:"remediation"`
	CVSS        string `json:"cvss"`
}

// ParseResult validates raw scanner output against the envelope schema and
// converts it to findings. Malformed JSON, success=false and invalid
// severities all surface as model.ErrScannerFailure.
func ParseResult(raw []byte) ([]model.Finding, error) {
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed scanner output: %v: %w", err, model.ErrScannerFailure)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "scan failed"
		}
		return nil, fmt.Errorf("%s: %w", msg, model.ErrScannerFailure)
	}

	findings := make([]model.Finding, 0, len(env.Vulnerabilities))
	for i, v := range env.Vulnerabilities {
		sev := model.Severity(v.Severity)
		if !sev.Valid() {
			return nil, fmt.Errorf("vulnerability %d has invalid severity %q: %w", i, v.Severity, model.ErrScannerFailure)
		}
		if v.Title == "" || v.Type == "" {
			return nil, fmt.Errorf("vulnerability %d is missing type or title: %w", i, model.ErrScannerFailure)
		}
		findings = append(findings, model.Finding{
			Type:        v.Type,
			Severity:    sev,
			Title:       v.Title,
			Description: v.Description,
			Payload:     v.Payload,
			Evidence:    v.Evidence,
			Remediation: v.Remediation,
			CVSS:        v.CVSS,
		})
	}
	return findings, nil
}
