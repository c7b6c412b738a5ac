// Package compose reconstructs output artifacts from parsed recognizer
// results: a paginated Word document (with table layout, RTL runs and
// font-size inference) and a merged PDF.
package compose

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/azadk/ocrhub/internal/hocr"
)

// A4 page size in twips (1 point = 20 twips, 1 inch = 72 points).
const (
	pageWidthTwips  = 8.25 * 72 * 20
	pageHeightTwips = 11.75 * 72 * 20
)

// lowConfidenceThreshold marks words the recognizer was unsure about.
// They are rendered with a yellow highlight so a human reviewer can
// spot them.
const lowConfidenceThreshold = 0.5

// WordDocument builds a .docx from one parsed page per source page.
// Tables are externally supplied overlay regions: paragraphs inside a
// table's bounding box are pulled out of normal flow and their words
// bucketed into the table's cell grid. A page break follows every page.
func WordDocument(pages []*hocr.Page, tables []hocr.Table) ([]byte, error) {
	var body strings.Builder

	for _, page := range pages {
		if page != nil {
			writePage(&body, page, tables)
		}
		body.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
	}

	return packageDocx(body.String())
}

func writePage(body *strings.Builder, page *hocr.Page, tables []hocr.Table) {
	inTable := make([]bool, len(page.Paragraphs))
	for i, par := range page.Paragraphs {
		if par.BBox == nil {
			continue
		}
		for _, table := range tables {
			if table.BBox.AlmostContains(*par.BBox) {
				inTable[i] = true
				break
			}
		}
	}

	for i, par := range page.Paragraphs {
		if !inTable[i] {
			writeParagraph(body, page, par)
		}
	}

	for _, table := range tables {
		var captured []hocr.Paragraph
		for i, par := range page.Paragraphs {
			if inTable[i] && table.BBox.AlmostContains(*par.BBox) {
				captured = append(captured, par)
			}
		}
		if len(captured) > 0 {
			writeTable(body, table, captured)
		}
	}
}

func writeParagraph(body *strings.Builder, page *hocr.Page, par hocr.Paragraph) {
	body.WriteString("<w:p>")
	if par.Direction == hocr.RightToLeft {
		body.WriteString("<w:pPr><w:bidi/></w:pPr>")
	}

	size := inferFontSize(par)

	for li, line := range par.Lines {
		lastLine := li == len(par.Lines)-1
		for wi, word := range line.Words {
			text := word.Text
			// Natural word spacing when lines concatenate into one run:
			// every word gets a trailing space except the very last word
			// of the very last line.
			if !lastLine || wi < len(line.Words)-1 {
				text += " "
			}
			writeRun(body, page, word, size, text)
		}
	}

	body.WriteString("</w:p>")
}

func writeRun(body *strings.Builder, page *hocr.Page, word hocr.Word, size int, text string) {
	body.WriteString("<w:r><w:rPr>")
	body.WriteString(`<w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/>`)
	if word.FontSize != nil && page.PredictSizes {
		// OOXML font size is in half-points.
		fmt.Fprintf(body, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, size*2, size*2)
	}
	if word.Confidence != nil && *word.Confidence < lowConfidenceThreshold {
		body.WriteString(`<w:highlight w:val="yellow"/>`)
	}
	body.WriteString("</w:rPr>")
	fmt.Fprintf(body, `<w:t xml:space="preserve">%s</w:t>`, escapeXML(text))
	body.WriteString("</w:r>")
}

// inferFontSize picks the paragraph's dominant recognized font size:
// highest occurrence count wins, ties broken by the smallest size, then
// the value is quantized into fixed buckets to smooth recognizer noise
// into legible step sizes.
func inferFontSize(par hocr.Paragraph) int {
	counts := make(map[float64]int)
	for _, line := range par.Lines {
		for _, word := range line.Words {
			if word.FontSize != nil {
				counts[*word.FontSize]++
			}
		}
	}

	var chosen float64
	best := 0
	for size, count := range counts {
		if count > best || (count == best && size < chosen) {
			chosen = size
			best = count
		}
	}

	switch {
	case chosen < 20:
		return 12
	case chosen < 30:
		return 24
	case chosen < 40:
		return 34
	case chosen < 50:
		return 44
	case chosen < 60:
		return 54
	default:
		return int(chosen)
	}
}

// tableWord is a word captured by a table region, tracked so each word
// lands in exactly one cell.
type tableWord struct {
	word     hocr.Word
	assigned bool
}

func writeTable(body *strings.Builder, table hocr.Table, paragraphs []hocr.Paragraph) {
	words := make([]tableWord, 0)
	rtlVotes := 0
	for _, par := range paragraphs {
		if par.Direction == hocr.RightToLeft {
			rtlVotes++
		}
		for _, line := range par.Lines {
			for _, w := range line.Words {
				words = append(words, tableWord{word: w})
			}
		}
	}
	rtl := rtlVotes*2 >= len(paragraphs)

	rows, columns := table.Rows(), table.Columns()
	if rows == 0 || columns == 0 {
		return
	}

	body.WriteString("<w:tbl><w:tblGrid>")
	columnWidth := int((pageWidthTwips - pageWidthTwips*0.2) / float64(columns))
	for c := 0; c < columns; c++ {
		fmt.Fprintf(body, `<w:gridCol w:w="%d"/>`, columnWidth)
	}
	body.WriteString("</w:tblGrid>")

	for r := 0; r < rows; r++ {
		body.WriteString("<w:tr>")
		for c := 0; c < columns; {
			if cell := anchorCell(table, r, c); cell != nil {
				span := cell.EndCol - cell.StartCol + 1
				body.WriteString(`<w:tc><w:tcPr><w:tcW w:type="dxa" w:w="2400"/>`)
				if span > 1 {
					fmt.Fprintf(body, `<w:gridSpan w:val="%d"/>`, span)
				}
				if cell.EndRow > cell.StartRow {
					body.WriteString(`<w:vMerge w:val="restart"/>`)
				}
				body.WriteString("</w:tcPr>")

				wrote := false
				for _, w := range cellWords(words, *cell, rtl) {
					fmt.Fprintf(body,
						`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
						escapeXML(w.Text))
					wrote = true
				}
				if !wrote {
					// A table cell must contain at least one paragraph.
					body.WriteString("<w:p/>")
				}
				body.WriteString("</w:tc>")
				c += span
				continue
			}

			if cell := continuationCell(table, r, c); cell != nil {
				span := cell.EndCol - cell.StartCol + 1
				body.WriteString(`<w:tc><w:tcPr><w:tcW w:type="dxa" w:w="2400"/>`)
				if span > 1 {
					fmt.Fprintf(body, `<w:gridSpan w:val="%d"/>`, span)
				}
				body.WriteString(`<w:vMerge/></w:tcPr><w:p/></w:tc>`)
				c += span
				continue
			}

			body.WriteString(`<w:tc><w:tcPr><w:tcW w:type="dxa" w:w="2400"/></w:tcPr><w:p/></w:tc>`)
			c++
		}
		body.WriteString("</w:tr>")
	}
	body.WriteString("</w:tbl>")
}

// anchorCell returns the cell whose top-left grid slot is (row, col).
func anchorCell(table hocr.Table, row, col int) *hocr.Cell {
	for i, cell := range table.Cells {
		if cell.StartRow == row && cell.StartCol == col {
			return &table.Cells[i]
		}
	}
	return nil
}

// continuationCell returns a vertically merged cell that covers
// (row, col) below its anchor row.
func continuationCell(table hocr.Table, row, col int) *hocr.Cell {
	for i, cell := range table.Cells {
		if cell.StartCol == col && cell.StartRow < row && cell.EndRow >= row {
			return &table.Cells[i]
		}
	}
	return nil
}

// cellWords picks the unassigned words contained by the cell and orders
// them for reading. Right-to-left, top-down scripts read descending X
// then descending Y; left-to-right content flips to ascending X.
func cellWords(words []tableWord, cell hocr.Cell, rtl bool) []hocr.Word {
	var picked []hocr.Word
	for i := range words {
		if words[i].assigned || words[i].word.BBox == nil {
			continue
		}
		if cell.BBox.AlmostContains(*words[i].word.BBox) {
			words[i].assigned = true
			picked = append(picked, words[i].word)
		}
	}

	sort.SliceStable(picked, func(i, j int) bool {
		a, b := picked[i].BBox, picked[j].BBox
		if a.X0 != b.X0 {
			if rtl {
				return a.X0 > b.X0
			}
			return a.X0 < b.X0
		}
		if rtl {
			return a.Y0 > b.Y0
		}
		return a.Y0 < b.Y0
	})

	return picked
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// OOXML package boilerplate.

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

func packageDocx(bodyXML string) ([]byte, error) {
	document := fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`+
			`<w:body>%s<w:sectPr><w:pgSz w:w="%d" w:h="%d"/></w:sectPr></w:body></w:document>`,
		bodyXML, int(pageWidthTwips), int(pageHeightTwips))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct {
		name, content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", document},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.name, err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}
