package report

import (
	"fmt"
	"strings"

	"github.com/breakingcid/scand/internal/model"
)

// RenderMarkdown produces the markdown variant of the report. It agrees
// with BuildSummary on all counts.
func RenderMarkdown(scan *model.Scan, findings []model.Finding) string {
	var b strings.Builder
	sum := BuildSummary(findings)

	fmt.Fprintf(&b, "# Security Scan Report\n\n")
	fmt.Fprintf(&b, "**Target:** %s\n\n", scan.Target)
	fmt.Fprintf(&b, "**Scan Type:** %s\n\n", scanTypeLabel(scan.ScanType))
	fmt.Fprintf(&b, "**Date:** %s\n\n", scan.CreatedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "---\n\n")

	fmt.Fprintf(&b, "## Executive Summary\n\n")
	fmt.Fprintf(&b, "Total vulnerabilities found: **%d**\n\n", sum.Total)
	fmt.Fprintf(&b, "- Critical: %d\n", sum.Critical)
	fmt.Fprintf(&b, "- High: %d\n", sum.High)
	fmt.Fprintf(&b, "- Medium: %d\n", sum.Medium)
	fmt.Fprintf(&b, "- Low: %d\n", sum.Low)
	fmt.Fprintf(&b, "- Info: %d\n\n", sum.Info)

	if len(findings) == 0 {
		fmt.Fprintf(&b, "No vulnerabilities detected.\n\n")
		return b.String()
	}

	fmt.Fprintf(&b, "---\n\n## Vulnerabilities\n\n")
	for i, f := range findings {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Title)
		fmt.Fprintf(&b, "**Severity:** %s\n\n", strings.ToUpper(string(f.Severity)))
		fmt.Fprintf(&b, "**Type:** %s\n\n", f.Type)
		cvss := f.CVSS
		if cvss == "" {
			cvss = "N/A"
		}
		fmt.Fprintf(&b, "**CVSS Score:** %s\n\n", cvss)
		if f.Description != "" {
			fmt.Fprintf(&b, "**Description:**\n\n%s\n\n", f.Description)
		}
		if f.Payload != "" {
			fmt.Fprintf(&b, "**Payload:**\n\n```\n%s\n```\n\n", f.Payload)
		}
		if f.Evidence != "" {
			fmt.Fprintf(&b, "**Evidence:**\n\n```\n%s\n```\n\n", truncate(f.Evidence, 200))
		}
		if f.Remediation != "" {
			fmt.Fprintf(&b, "**Remediation:**\n\n%s\n\n", f.Remediation)
		}
		fmt.Fprintf(&b, "---\n\n")
	}

	fmt.Fprintf(&b, "## Methodology\n\n")
	fmt.Fprintf(&b, "This security assessment was conducted using industry-standard techniques based on:\n\n")
	fmt.Fprintf(&b, "- OWASP Testing Guide v4.2\n")
	fmt.Fprintf(&b, "- NIST SP 800-115\n")
	fmt.Fprintf(&b, "- PTES (Penetration Testing Execution Standard)\n\n")

	return b.String()
}
