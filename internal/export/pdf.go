package export

import (
	"github.com/go-pdf/fpdf"
)

func writePDF(path, fontPath string, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if fontPath != "" {
		pdf.AddUTF8Font("body", "", fontPath)
		family = "body"
		tr = func(s string) string { return s }
	}

	pdf.AddPage()

	pdf.SetFont(family, "", 16)
	pdf.MultiCell(0, 8, tr(doc.Title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont(family, "", 9)
	pdf.SetTextColor(100, 100, 100)
	if doc.StoreName != "" {
		pdf.MultiCell(0, 5, tr("Store: "+doc.StoreName), "", "L", false)
	}
	if doc.Question != "" {
		pdf.MultiCell(0, 5, tr("Question: "+doc.Question), "", "L", false)
	}
	pdf.MultiCell(0, 5, tr("Date: "+doc.CreatedAt.Format("2006-01-02 15:04")), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	for _, b := range ParseMarkdown(doc.Content) {
		switch {
		case b.Text == "":
			pdf.Ln(3)
		case b.Heading:
			pdf.SetFont(family, "", 13)
			pdf.MultiCell(0, 7, tr(b.Text), "", "L", false)
			pdf.SetFont(family, "", 11)
		default:
			pdf.SetFont(family, "", 11)
			pdf.MultiCell(0, 6, tr(b.Text), "", "L", false)
		}
	}

	return pdf.OutputFileAndClose(path)
}
