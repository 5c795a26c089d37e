package documents

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"doccontrol/portal-backend/pkg/pdf"
	"doccontrol/portal-backend/pkg/spreadsheet"
)

// ExportFormat is the file format of an exported approval trail.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportPDF  ExportFormat = "pdf"
)

// ParseExportFormat accepts "xlsx", "excel" or "pdf"; empty means xlsx.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return ExportXLSX, nil
	case "pdf":
		return ExportPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f ExportFormat) ContentType() string {
	if f == ExportPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

var trailColumns = []string{"Step", "Approver", "Status", "Viewed", "Approved At", "Rejected At", "Comments"}

// TrailExporter renders a workflow's steps as an approval trail.
type TrailExporter struct {
	pdf pdf.Generator
}

func NewTrailExporter(generator pdf.Generator) *TrailExporter {
	return &TrailExporter{pdf: generator}
}

func (e *TrailExporter) Export(ctx context.Context, doc *Document, wf *ApprovalWorkflow, format ExportFormat, w io.Writer) error {
	switch format {
	case ExportXLSX:
		rows := make([][]interface{}, 0, len(wf.Steps))
		for _, st := range sortedSteps(wf.Steps) {
			row := make([]interface{}, 0, len(trailColumns))
			for _, cell := range trailRow(st) {
				row = append(row, cell)
			}
			row[0] = st.Order
			rows = append(rows, row)
		}
		return spreadsheet.WriteTable(w, spreadsheet.Table{
			Sheet:   "Approval Trail",
			Columns: trailColumns,
			Rows:    rows,
		})
	case ExportPDF:
		rows := make([][]string, 0, len(wf.Steps))
		for _, st := range sortedSteps(wf.Steps) {
			rows = append(rows, trailRow(st))
		}
		return e.pdf.Generate(ctx, pdf.Report{
			Title:    "Approval Trail: " + doc.Name,
			Subtitle: trailSubtitle(wf),
			Columns:  trailColumns,
			Rows:     rows,
			Widths:   []float64{14, 50, 24, 18, 38, 38},
		}, w)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func trailRow(st ApprovalStep) []string {
	viewed := "no"
	if st.ViewedDocument {
		viewed = "yes"
	}
	comments := ""
	if st.Comments != nil {
		comments = *st.Comments
	}
	return []string{
		strconv.Itoa(st.Order),
		approverLabel(&st),
		string(st.Status),
		viewed,
		formatTime(st.ApprovedAt),
		formatTime(st.RejectedAt),
		comments,
	}
}

func trailSubtitle(wf *ApprovalWorkflow) string {
	s := fmt.Sprintf("Workflow %s | %s | step %d of %d | requested %s",
		wf.ID, wf.OverallStatus, wf.CurrentStep, wf.TotalSteps, wf.RequestedAt.UTC().Format(time.RFC3339))
	if wf.CompletedAt != nil {
		s += " | completed " + wf.CompletedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
