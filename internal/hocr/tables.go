package hocr

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Cell is one cell of a table overlay. Start/end row and column indices
// support merged cells spanning multiple grid slots.
type Cell struct {
	StartRow, EndRow int
	StartCol, EndCol int
	BBox             Rect
}

// Table is an externally annotated table region. Words of paragraphs
// inside its bounding box are re-bucketed into the cell grid instead of
// normal paragraph flow.
type Table struct {
	BBox  Rect
	Cells []Cell
}

// Rows returns the number of grid rows.
func (t Table) Rows() int {
	max := 0
	for _, c := range t.Cells {
		if c.EndRow+1 > max {
			max = c.EndRow + 1
		}
	}
	return max
}

// Columns returns the number of grid columns.
func (t Table) Columns() int {
	max := 0
	for _, c := range t.Cells {
		if c.EndCol+1 > max {
			max = c.EndCol + 1
		}
	}
	return max
}

// ParseTables parses an ICDAR-19 style table annotation document. Each
// table carries a bounding polygon (reduced to its axis-aligned bounding
// box) and a set of cells with explicit grid positions. Malformed
// numeric attributes default to zero rather than failing the parse.
func ParseTables(doc string) ([]Table, error) {
	decoder := xml.NewDecoder(strings.NewReader(doc))

	var tables []Table
	var table *Table
	var cell *Cell

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				table = &Table{}
			case "cell":
				if table == nil {
					continue
				}
				cell = &Cell{
					StartRow: intAttr(t, "start-row"),
					EndRow:   intAttr(t, "end-row"),
					StartCol: intAttr(t, "start-col"),
					EndCol:   intAttr(t, "end-col"),
				}
			case "Coords":
				bbox := pointsBBox(findAttr(t, "points"))
				if cell != nil {
					cell.BBox = bbox
				} else if table != nil {
					table.BBox = bbox
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "cell":
				if table != nil && cell != nil {
					table.Cells = append(table.Cells, *cell)
				}
				cell = nil
			case "table":
				if table != nil {
					tables = append(tables, *table)
				}
				table = nil
			}
		}
	}

	return tables, nil
}

// pointsBBox reduces a polygon attribute ("x,y x,y ...") to the
// axis-aligned bounding box of its points.
func pointsBBox(points string) Rect {
	var rect Rect
	first := true
	for _, pair := range strings.Fields(points) {
		nums := strings.Split(pair, ",")
		if len(nums) != 2 {
			continue
		}
		x, errX := strconv.ParseFloat(nums[0], 64)
		y, errY := strconv.ParseFloat(nums[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		if first {
			rect = Rect{X0: x, Y0: y, X1: x, Y1: y}
			first = false
			continue
		}
		if x < rect.X0 {
			rect.X0 = x
		}
		if y < rect.Y0 {
			rect.Y0 = y
		}
		if x > rect.X1 {
			rect.X1 = x
		}
		if y > rect.Y1 {
			rect.Y1 = y
		}
	}
	return rect
}

func intAttr(el xml.StartElement, name string) int {
	n, err := strconv.Atoi(findAttr(el, name))
	if err != nil {
		return 0
	}
	return n
}

func findAttr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
