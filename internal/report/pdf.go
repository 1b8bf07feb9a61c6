package report

import (
	"bufio"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/extract"
)

// WritePDF renders the Summary of rec and adv to a one-page PDF at path.
func WritePDF(path string, now time.Time, rec extract.Record, adv *calc.Advice) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Attendance summary", true)
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()
	// Core fonts are cp1252; translate so non-ASCII titles do not garble.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	mono := false
	scanner := bufio.NewScanner(strings.NewReader(Summary(now, rec, adv)))
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			pdf.Ln(3)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			size := 16.0
			if i >= 2 {
				size = 13.0
			}
			text := strings.TrimSpace(s[i:])
			mono = text == "Diagnostics"
			pdf.SetFont("Helvetica", "B", size)
			pdf.CellFormat(0, 8, tr(text), "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		if mono {
			pdf.SetFont("Courier", "", 8)
			pdf.MultiCell(0, 4, tr(s), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		pdf.MultiCell(0, 5, tr(s), "", "L", false)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}
