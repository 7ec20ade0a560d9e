package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"os"
	"strconv"
	"strings"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// writeDOCX writes a minimal WordprocessingML package
func writeDOCX(path string, doc Document) error {
	var body strings.Builder
	paragraph(&body, doc.Title, 32, true, "")
	if doc.StoreName != "" {
		paragraph(&body, "Store: "+doc.StoreName, 18, false, "666666")
	}
	if doc.Question != "" {
		paragraph(&body, "Question: "+doc.Question, 18, false, "666666")
	}
	paragraph(&body, "Date: "+doc.CreatedAt.Format("2006-01-02 15:04"), 18, false, "666666")
	paragraph(&body, "", 22, false, "")

	for _, b := range ParseMarkdown(doc.Content) {
		if b.Heading {
			paragraph(&body, b.Text, 26, true, "")
			continue
		}
		paragraph(&body, b.Text, 22, false, "")
	}

	documentXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range []struct{ name, data string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML},
	} {
		w, err := zw.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(part.data)); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// paragraph appends one run; size is in half-points
func paragraph(sb *strings.Builder, text string, size int, bold bool, color string) {
	sb.WriteString("<w:p><w:r><w:rPr>")
	if bold {
		sb.WriteString("<w:b/>")
	}
	if color != "" {
		sb.WriteString(`<w:color w:val="` + color + `"/>`)
	}
	sb.WriteString(`<w:sz w:val="`)
	sb.WriteString(strconv.Itoa(size))
	sb.WriteString(`"/></w:rPr><w:t xml:space="preserve">`)
	xml.EscapeText(sb, []byte(text))
	sb.WriteString("</w:t></w:r></w:p>")
}
