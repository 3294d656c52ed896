package providers

// pdf.go loads a PDF statement into positioned text rows.
//
// pdfcpu reads the document information (page count, producer) and
// ledongthuc/pdf extracts text grouped by baseline. Glyph runs that sit
// close together on a row are merged into cells, keeping their horizontal
// position so table columns can be matched by geometry rather than by count.

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

type pdfText = pdf.Text

// minCellGap is the smallest horizontal gap, in points, that starts a new cell.
const minCellGap = 6.0

// pdfCell is a run of text on one row.
type pdfCell struct {
	X, W float64
	Text string
}

func (c pdfCell) center() float64 { return c.X + c.W/2 }

// pdfRow is one visual line of a page.
type pdfRow struct {
	Page  int
	Cells []pdfCell
}

// Texts returns the cell texts in reading order.
func (r pdfRow) Texts() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Text
	}
	return out
}

// Line returns the row as a single space separated line.
func (r pdfRow) Line() string {
	return strings.Join(r.Texts(), " ")
}

// pdfDocument is the extracted content of a statement.
type pdfDocument struct {
	PageCount int
	Producer  string
	Rows      []pdfRow
}

// Lines returns every row as text.
func (d *pdfDocument) Lines() []string {
	out := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Line()
	}
	return out
}

// loadPDF extracts positioned rows from every page of data.
func loadPDF(data []byte) (doc *pdfDocument, err error) {
	doc = &pdfDocument{}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	info, infoErr := api.PDFInfo(bytes.NewReader(data), "statement.pdf", nil, conf)
	if infoErr != nil {
		slog.Warn("pdf info unavailable, extracting anyway", "error", infoErr)
	} else {
		doc.PageCount = info.PageCount
		doc.Producer = info.Producer
		if info.PageCount == 0 {
			return nil, fmt.Errorf("pdf has no pages")
		}
	}

	// The text extractor panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	if doc.PageCount == 0 {
		doc.PageCount = reader.NumPage()
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			slog.Warn("pdf page rows unavailable, using plain text", "page", i, "error", err)
			doc.Rows = append(doc.Rows, plainTextRows(page, i)...)
			continue
		}
		for _, row := range rows {
			cells := mergeCells(row.Content)
			if len(cells) > 0 {
				doc.Rows = append(doc.Rows, pdfRow{Page: i, Cells: cells})
			}
		}
	}
	return doc, nil
}

// plainTextRows splits a page's plain text into rows without positions.
func plainTextRows(page pdf.Page, number int) []pdfRow {
	text, err := page.GetPlainText(nil)
	if err != nil {
		slog.Warn("pdf page text unavailable", "page", number, "error", err)
		return nil
	}
	var rows []pdfRow
	for _, line := range strings.Split(text, "\n") {
		var cells []pdfCell
		for i, f := range strings.Fields(line) {
			cells = append(cells, pdfCell{X: float64(i), Text: f})
		}
		if len(cells) > 0 {
			rows = append(rows, pdfRow{Page: number, Cells: cells})
		}
	}
	return rows
}

// mergeCells joins glyph runs separated by less than a cell gap.
func mergeCells(texts []pdfText) []pdfCell {
	sorted := make([]pdfText, 0, len(texts))
	for _, t := range texts {
		if t.S != "" {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []pdfCell
	var cur *pdfCell
	for _, t := range sorted {
		gap := math.Max(minCellGap, t.FontSize)
		if cur != nil && t.X-(cur.X+cur.W) < gap && strings.TrimSpace(t.S) != "" {
			cur.Text += t.S
			cur.W = t.X + t.W - cur.X
			continue
		}
		if strings.TrimSpace(t.S) == "" {
			// A space glyph ends the current cell only if the gap after it is wide.
			continue
		}
		if cur != nil {
			cells = append(cells, finishCell(*cur))
		}
		cur = &pdfCell{X: t.X, W: t.W, Text: t.S}
	}
	if cur != nil {
		cells = append(cells, finishCell(*cur))
	}
	return cells
}

func finishCell(c pdfCell) pdfCell {
	c.Text = strings.TrimSpace(c.Text)
	return c
}

// joinWrapped appends a wrapped continuation to text. CJK text wraps
// without a space; everything else is joined with one.
func joinWrapped(text, more string) string {
	if text == "" {
		return more
	}
	if more == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	first, _ := utf8.DecodeRuneInString(more)
	if last >= utf8.RuneSelf && first >= utf8.RuneSelf {
		return text + more
	}
	return text + " " + more
}
