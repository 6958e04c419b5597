// Package report turns a scan's findings into summary statistics, a bounded
// risk score and rendered report documents. Everything here is a pure
// function of (scan, findings): identical input produces identical output,
// which the golden tests rely on.
package report

import (
	"fmt"
	"strings"

	"github.com/breakingcid/scand/internal/model"
)

// Severity weights for the overall risk score. Informational findings carry
// no weight.
const (
	weightCritical = 25
	weightHigh     = 15
	weightMedium   = 8
	weightLow      = 3
)

// RiskLevel buckets for a [0,100] score.
const (
	RiskMinimal  = "MINIMAL"
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// BuildSummary counts findings per severity.
func BuildSummary(findings []model.Finding) model.Summary {
	var sum model.Summary
	sum.Total = len(findings)
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical:
			sum.Critical++
		case model.SeverityHigh:
			sum.High++
		case model.SeverityMedium:
			sum.Medium++
		case model.SeverityLow:
			sum.Low++
		case model.SeverityInfo:
			sum.Info++
		}
	}
	return sum
}

// ComputeRiskScore sums severity weights over all findings, clamped to 100.
func ComputeRiskScore(findings []model.Finding) int {
	score := 0
	for _, f := range findings {
		switch f.Severity {
		case model.SeverityCritical:
			score += weightCritical
		case model.SeverityHigh:
			score += weightHigh
		case model.SeverityMedium:
			score += weightMedium
		case model.SeverityLow:
			score += weightLow
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// RiskLevel maps a risk score to its qualitative bucket.
func RiskLevel(score int) string {
	switch {
	case score < 20:
		return RiskMinimal
	case score < 40:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func severityMarker(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "[CRIT]"
	case model.SeverityHigh:
		return "[HIGH]"
	case model.SeverityMedium:
		return "[MED] "
	case model.SeverityLow:
		return "[LOW] "
	default:
		return "[INFO]"
	}
}

func scanTypeLabel(t model.ScanType) string {
	return strings.ToUpper(strings.ReplaceAll(string(t), "_", " "))
}

// Render produces the canonical plain-text report for a scan: metadata,
// severity summary, risk assessment, one section per finding (evidence
// truncated to 200 characters) and severity-conditioned recommendations.
func Render(scan *model.Scan, findings []model.Finding) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	sum := BuildSummary(findings)
	score := ComputeRiskScore(findings)

	line("========================================================================")
	line("                      SCAND SECURITY SCAN REPORT")
	line("========================================================================")
	line("")
	line("--- SCAN INFORMATION ---------------------------------------------------")
	line("Scan ID:        %d", scan.ID)
	line("Target:         %s", scan.Target)
	line("Scan Type:      %s", scanTypeLabel(scan.ScanType))
	line("Status:         %s", strings.ToUpper(string(scan.Status)))
	line("Started:        %s", scan.CreatedAt.UTC().Format(timeLayout))
	if scan.Duration != nil {
		line("Duration:       %d seconds", *scan.Duration)
	}
	line("")
	line("--- VULNERABILITY SUMMARY ----------------------------------------------")
	line("Total Vulnerabilities:  %d", sum.Total)
	line("Critical:               %d", sum.Critical)
	line("High:                   %d", sum.High)
	line("Medium:                 %d", sum.Medium)
	line("Low:                    %d", sum.Low)
	line("Info:                   %d", sum.Info)
	line("")
	line("--- RISK ASSESSMENT ----------------------------------------------------")
	line("Overall Risk Level:     %s", RiskLevel(score))
	line("Risk Score:             %d/100", score)
	line("")

	if len(findings) > 0 {
		line("--- DETAILED FINDINGS --------------------------------------------------")
		line("")
		for i, f := range findings {
			line("%s [%d] %s", severityMarker(f.Severity), i+1, f.Title)
			line("    Type:        %s", f.Type)
			line("    Severity:    %s", strings.ToUpper(string(f.Severity)))
			if f.Description != "" {
				line("    Description: %s", f.Description)
			}
			if f.Payload != "" {
				line("    Payload:     %s", f.Payload)
			}
			if f.Evidence != "" {
				line("    Evidence:    %s", truncate(f.Evidence, 200))
			}
			line("    Found:       %s", f.CreatedAt.UTC().Format(timeLayout))
			line("")
		}
	}

	line("--- RECOMMENDATIONS ----------------------------------------------------")
	if sum.Critical > 0 {
		line("!! CRITICAL ISSUES FOUND")
		line("   - Address critical vulnerabilities immediately")
		line("   - These issues pose significant security risks")
		line("   - Implement fixes before deploying to production")
		line("")
	}
	if sum.High > 0 {
		line("!! HIGH SEVERITY ISSUES FOUND")
		line("   - Prioritize fixing high-severity vulnerabilities")
		line("   - These issues should be addressed in the near term")
		line("")
	}
	if len(findings) == 0 {
		line("No vulnerabilities found during this scan.")
		line("Continue monitoring and perform regular security assessments.")
	} else {
		line("- Perform code review for affected components")
		line("- Implement security best practices")
		line("- Conduct follow-up testing after remediation")
		line("- Monitor for similar issues in the future")
	}
	line("")
	line("========================================================================")

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
