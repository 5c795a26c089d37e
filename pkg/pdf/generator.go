package pdf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Report is a titled table rendered onto one or more pages.
type Report struct {
	Title    string
	Subtitle string
	Author   string
	Columns  []string
	Rows     [][]string
	// Widths in mm per column. Missing entries share the remaining width.
	Widths []float64
}

type Generator interface {
	Generate(ctx context.Context, report Report, w io.Writer) error
}

// Options configures page layout
type Options struct {
	PageSize    string // A4, Letter, Legal
	Orientation string // P or L
	FontFamily  string
	FontSize    float64
	Margin      float64
}

// DefaultOptions returns landscape A4 with Arial 9pt
func DefaultOptions() Options {
	return Options{
		PageSize:    "A4",
		Orientation: "L",
		FontFamily:  "Arial",
		FontSize:    9,
		Margin:      12,
	}
}

type fpdfGenerator struct {
	options Options
}

func NewGenerator(options Options) Generator {
	return &fpdfGenerator{options: options}
}

func (g *fpdfGenerator) Generate(ctx context.Context, report Report, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(report.Columns) == 0 {
		return fmt.Errorf("report has no columns")
	}

	pdf := gofpdf.New(g.options.Orientation, "mm", g.options.PageSize, "")
	pdf.SetMargins(g.options.Margin, g.options.Margin, g.options.Margin)
	pdf.SetAutoPageBreak(true, g.options.Margin+5)
	pdf.SetTitle(report.Title, true)
	if report.Author != "" {
		pdf.SetAuthor(report.Author, true)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.options.FontFamily, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont(g.options.FontFamily, "B", 16)
	pdf.CellFormat(0, 10, tr(report.Title), "", 1, "L", false, 0, "")
	if report.Subtitle != "" {
		pdf.SetFont(g.options.FontFamily, "", 11)
		pdf.CellFormat(0, 7, tr(report.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.SetFont(g.options.FontFamily, "", 8)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, "Generated "+time.Now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	widths := g.columnWidths(pdf, report)

	pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for i, col := range report.Columns {
		pdf.CellFormat(widths[i], 7, tr(col), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	pdf.SetTextColor(0, 0, 0)
	for r, row := range report.Rows {
		fill := r%2 == 1
		pdf.SetFillColor(242, 242, 242)
		for i := range report.Columns {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			pdf.CellFormat(widths[i], 6, tr(truncate(pdf, val, widths[i]-2)), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

func (g *fpdfGenerator) columnWidths(pdf *gofpdf.Fpdf, report Report) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*g.options.Margin

	widths := make([]float64, len(report.Columns))
	fixed, unset := 0.0, 0
	for i := range widths {
		if i < len(report.Widths) && report.Widths[i] > 0 {
			widths[i] = report.Widths[i]
			fixed += widths[i]
		} else {
			unset++
		}
	}
	if unset > 0 {
		share := (usable - fixed) / float64(unset)
		if share < 10 {
			share = 10
		}
		for i := range widths {
			if widths[i] == 0 {
				widths[i] = share
			}
		}
	}
	return widths
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
