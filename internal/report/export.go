package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/breakingcid/scand/internal/model"
)

// Format names accepted by Export.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatXML      = "xml"
)

// ContentType returns the MIME type for a format, or "" when the format is
// unknown.
func ContentType(format string) string {
	switch format {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXML:
		return "application/xml; charset=utf-8"
	}
	return ""
}

// Export serializes the report in the requested format. All formats are
// derived from the same (scan, findings) input and agree with BuildSummary
// on totals. Unknown formats map to model.ErrInvalidInput.
func Export(format string, scan *model.Scan, findings []model.Finding) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(Render(scan, findings)), nil
	case FormatMarkdown:
		return []byte(RenderMarkdown(scan, findings)), nil
	case FormatJSON:
		return exportJSON(scan, findings)
	case FormatCSV:
		return exportCSV(findings)
	case FormatXML:
		return exportXML(scan, findings)
	}
	return nil, fmt.Errorf("unknown report format %q: %w", format, model.ErrInvalidInput)
}

type jsonScan struct {
	ID        int64     `json:"id"`
	Target    string    `json:"target"`
	ScanType  string    `json:"scanType"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Duration  *int64    `json:"duration,omitempty"`
}

type jsonFinding struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Evidence     string    `json:"evidence,omitempty"`
	Payload      string    `json:"payload,omitempty"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

func exportJSON(scan *model.Scan, findings []model.Finding) ([]byte, error) {
	doc := struct {
		Scan            jsonScan      `json:"scan"`
		Summary         model.Summary `json:"summary"`
		RiskScore       int           `json:"riskScore"`
		RiskLevel       string        `json:"riskLevel"`
		Vulnerabilities []jsonFinding `json:"vulnerabilities"`
	}{
		Scan: jsonScan{
			ID:        scan.ID,
			Target:    scan.Target,
			ScanType:  string(scan.ScanType),
			Status:    string(scan.Status),
			CreatedAt: scan.CreatedAt.UTC(),
			Duration:  scan.Duration,
		},
		Summary:         BuildSummary(findings),
		RiskScore:       ComputeRiskScore(findings),
		RiskLevel:       RiskLevel(ComputeRiskScore(findings)),
		Vulnerabilities: make([]jsonFinding, 0, len(findings)),
	}
	for _, f := range findings {
		doc.Vulnerabilities = append(doc.Vulnerabilities, jsonFinding{
			ID:           f.ID,
			Type:         f.Type,
			Severity:     string(f.Severity),
			Title:        f.Title,
			Description:  f.Description,
			Evidence:     f.Evidence,
			Payload:      f.Payload,
			DiscoveredAt: f.CreatedAt.UTC(),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func exportCSV(findings []model.Finding) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"ID", "Type", "Severity", "Title", "Description", "Payload", "Evidence", "Discovered"}); err != nil {
		return nil, err
	}
	for _, f := range findings {
		rec := []string{
			fmt.Sprintf("%d", f.ID),
			f.Type,
			string(f.Severity),
			f.Title,
			f.Description,
			f.Payload,
			truncate(f.Evidence, 50),
			f.CreatedAt.UTC().Format(timeLayout),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

type xmlFinding struct {
	ID           int64  `xml:"id"`
	Type         string `xml:"type"`
	Severity     string `xml:"severity"`
	Title        string `xml:"title"`
	Description  string `xml:"description,omitempty"`
	Payload      string `xml:"payload,omitempty"`
	Evidence     string `xml:"evidence,omitempty"`
	DiscoveredAt string `xml:"discoveredAt"`
}

type xmlSummary struct {
	Total    int `xml:"total"`
	Critical int `xml:"critical"`
	High     int `xml:"high"`
	Medium   int `xml:"medium"`
	Low      int `xml:"low"`
	Info     int `xml:"info"`
}

type xmlReport struct {
	XMLName xml.Name `xml:"scanReport"`
	Scan    struct {
		ID        int64  `xml:"id"`
		Target    string `xml:"target"`
		ScanType  string `xml:"scanType"`
		Status    string `xml:"status"`
		CreatedAt string `xml:"createdAt"`
		Duration  *int64 `xml:"duration,omitempty"`
	} `xml:"scan"`
	Summary         xmlSummary   `xml:"summary"`
	Vulnerabilities []xmlFinding `xml:"vulnerabilities>vulnerability"`
}

func exportXML(scan *model.Scan, findings []model.Finding) ([]byte, error) {
	var doc xmlReport
	doc.Scan.ID = scan.ID
	doc.Scan.Target = scan.Target
	doc.Scan.ScanType = string(scan.ScanType)
	doc.Scan.Status = string(scan.Status)
	doc.Scan.CreatedAt = scan.CreatedAt.UTC().Format(time.RFC3339)
	doc.Scan.Duration = scan.Duration
	sum := BuildSummary(findings)
	doc.Summary = xmlSummary{
		Total:    sum.Total,
		Critical: sum.Critical,
		High:     sum.High,
		Medium:   sum.Medium,
		Low:      sum.Low,
		Info:     sum.Info,
	}
	for _, f := range findings {
		doc.Vulnerabilities = append(doc.Vulnerabilities, xmlFinding{
			ID:           f.ID,
			Type:         f.Type,
			Severity:     string(f.Severity),
			Title:        f.Title,
			Description:  f.Description,
			Payload:      f.Payload,
			Evidence:     f.Evidence,
			DiscoveredAt: f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
