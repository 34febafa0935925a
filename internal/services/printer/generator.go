package printer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/edukinara/happybar-sub000/internal/models"
)

// LabelConfig holds the sheet layout for area labels
type LabelConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// DefaultLabelConfig is a 2x4 sheet with 10mm margins
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{Cols: 2, Rows: 4, MarginTop: 10, MarginLeft: 10, GapX: 4, GapY: 4}
}

func (c *LabelConfig) normalize() {
	if c.Cols <= 0 {
		c.Cols = 2
	}
	if c.Rows <= 0 {
		c.Rows = 4
	}
}

// AreaQRContent is what a storage area label encodes. Scanning it selects
// the area in the counting app.
func AreaQRContent(sessionID, areaID string) string {
	return fmt.Sprintf("HAPPYBAR/AREA/%s/%s", sessionID, areaID)
}

// ErrNoAreas is returned when a session has nothing to label
var ErrNoAreas = errors.New("session has no storage areas")

// GenerateAreaLabelsPDF creates a PDF with one QR label per storage area
func GenerateAreaLabelsPDF(session *models.CountSession, cfg LabelConfig) ([]byte, error) {
	if session == nil || len(session.Areas) == 0 {
		return nil, ErrNoAreas
	}
	cfg.normalize()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)
	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// A4 dimensions
	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}

	for i, area := range session.Areas {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		qrPng, err := qrcode.Encode(AreaQRContent(session.ID, area.ID), qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode qr for area %s: %w", area.ID, err)
		}

		imgName := fmt.Sprintf("area_%d", i)
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR takes 60% of the label height, name and session below
		qrSize := labelH * 0.6
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + 4
		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, qrY+qrSize+2)
		pdf.SetFontSize(14)
		pdf.CellFormat(labelW, 7, tr(area.Name), "", 0, "C", false, 0, "")

		pdf.SetXY(x, qrY+qrSize+10)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 4, tr(fmt.Sprintf("%s #%d", session.Name, area.Order+1)), "", 0, "C", false, 0, "")

		pdf.SetDrawColor(200, 200, 200)
		pdf.Rect(x, y, labelW, labelH, "D")
	}

	return output(pdf)
}

// GenerateCountSheetPDF renders a session's items grouped by storage area,
// with counted quantity and variance, followed by the session totals.
func GenerateCountSheetPDF(session *models.CountSession, items []*models.CountItem) ([]byte, error) {
	if session == nil {
		return nil, errors.New("nil session")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 9, tr(session.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	meta := fmt.Sprintf("%s count | %s | started %s", session.Type, session.Status, session.StartedAt.Format("2006-01-02 15:04"))
	if session.LocationName != "" {
		meta = session.LocationName + " | " + meta
	}
	pdf.CellFormat(0, 5, tr(meta), "", 1, "L", false, 0, "")
	if session.CompletedAt != nil {
		pdf.CellFormat(0, 5, "Completed "+session.CompletedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	widths := []float64{74, 22, 24, 24, 24, 18}
	header := []string{"Product", "Unit", "Expected", "Counted", "Variance", "Par"}

	for _, group := range groupByArea(session, items) {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(235, 235, 235)
		title := group.name
		if group.status != "" {
			title = fmt.Sprintf("%s (%s)", group.name, group.status)
		}
		pdf.CellFormat(0, 7, tr(title), "", 1, "L", true, 0, "")

		pdf.SetFont("Arial", "B", 8)
		for i, h := range header {
			align := "R"
			if i < 2 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, h, "B", 0, align, false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		if len(group.items) == 0 {
			pdf.CellFormat(0, 6, "No items counted", "", 1, "L", false, 0, "")
		}
		for _, it := range group.items {
			pdf.CellFormat(widths[0], 5.5, tr(productLabel(it)), "", 0, "L", false, 0, "")
			pdf.CellFormat(widths[1], 5.5, tr(it.Unit), "", 0, "L", false, 0, "")
			pdf.CellFormat(widths[2], 5.5, formatQty(it.CurrentStock), "", 0, "R", false, 0, "")
			pdf.CellFormat(widths[3], 5.5, formatQty(it.CountedQuantity), "", 0, "R", false, 0, "")
			if it.Variance < 0 {
				pdf.SetTextColor(180, 0, 0)
			}
			pdf.CellFormat(widths[4], 5.5, formatSigned(it.Variance), "", 0, "R", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(widths[5], 5.5, formatQty(it.ParLevel), "", 1, "R", false, 0, "")
		}
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Items counted: %d    Total variance: %s", session.TotalItems, formatSigned(session.TotalVariance)), "T", 1, "L", false, 0, "")

	return output(pdf)
}

type areaGroup struct {
	name   string
	status models.AreaStatus
	items  []*models.CountItem
}

// groupByArea buckets items in area order, oldest count first. Items whose
// area is unknown land in a trailing "Unassigned" group.
func groupByArea(session *models.CountSession, items []*models.CountItem) []areaGroup {
	areas := append([]models.CountArea(nil), session.Areas...)
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].Order < areas[j].Order })

	groups := make([]areaGroup, 0, len(areas)+1)
	index := make(map[string]int, len(areas))
	for _, a := range areas {
		index[a.ID] = len(groups)
		groups = append(groups, areaGroup{name: a.Name, status: a.Status})
	}
	var loose []*models.CountItem
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.AreaID != nil {
			if gi, ok := index[*it.AreaID]; ok {
				groups[gi].items = append(groups[gi].items, it)
				continue
			}
		}
		loose = append(loose, it)
	}
	if len(loose) > 0 {
		groups = append(groups, areaGroup{name: "Unassigned", items: loose})
	}
	return groups
}

func productLabel(it *models.CountItem) string {
	name := it.ProductName
	if name == "" {
		name = it.ProductID
	}
	if it.SKU != "" {
		name += " [" + it.SKU + "]"
	}
	if it.Container != "" {
		name += " / " + it.Container
	}
	return name
}

func formatQty(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatSigned(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
