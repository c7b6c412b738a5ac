package hocr

import "testing"

const sampleTableXML = `<?xml version="1.0" encoding="UTF-8"?>
<document filename="page.jpg">
  <table>
    <Coords points="10,20 510,20 510,320 10,320"/>
    <cell start-row="0" end-row="0" start-col="0" end-col="0">
      <Coords points="10,20 260,20 260,170 10,170"/>
    </cell>
    <cell start-row="0" end-row="0" start-col="1" end-col="1">
      <Coords points="260,20 510,20 510,170 260,170"/>
    </cell>
    <cell start-row="1" end-row="1" start-col="0" end-col="1">
      <Coords points="10,170 510,170 510,320 10,320"/>
    </cell>
  </table>
</document>`

func TestParseTables(t *testing.T) {
	tables, err := ParseTables(sampleTableXML)
	if err != nil {
		t.Fatalf("ParseTables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}

	table := tables[0]
	want := Rect{X0: 10, Y0: 20, X1: 510, Y1: 320}
	if table.BBox != want {
		t.Errorf("table bbox = %+v, want %+v", table.BBox, want)
	}
	if len(table.Cells) != 3 {
		t.Fatalf("got %d cells, want 3", len(table.Cells))
	}
	if table.Rows() != 2 || table.Columns() != 2 {
		t.Errorf("grid = %dx%d, want 2x2", table.Rows(), table.Columns())
	}

	merged := table.Cells[2]
	if merged.StartCol != 0 || merged.EndCol != 1 {
		t.Errorf("merged cell spans cols %d-%d, want 0-1", merged.StartCol, merged.EndCol)
	}
}

func TestParseTablesPolygonReduction(t *testing.T) {
	// An irregular polygon reduces to the min/max bounding box.
	doc := `<document><table>
		<Coords points="50,5 90,40 10,60 70,90"/>
	</table></document>`

	tables, err := ParseTables(doc)
	if err != nil {
		t.Fatalf("ParseTables() error = %v", err)
	}
	want := Rect{X0: 10, Y0: 5, X1: 90, Y1: 90}
	if tables[0].BBox != want {
		t.Errorf("bbox = %+v, want %+v", tables[0].BBox, want)
	}
}

func TestParseTablesMalformedAttributes(t *testing.T) {
	doc := `<document><table>
		<Coords points="0,0 100,100"/>
		<cell start-row="oops" end-row="" start-col="1" end-col="1">
			<Coords points="0,0 50,50 bad,pair"/>
		</cell>
	</table></document>`

	tables, err := ParseTables(doc)
	if err != nil {
		t.Fatalf("ParseTables() error = %v", err)
	}
	cell := tables[0].Cells[0]
	if cell.StartRow != 0 || cell.EndRow != 0 {
		t.Errorf("malformed rows = %d-%d, want 0-0", cell.StartRow, cell.EndRow)
	}
	if cell.StartCol != 1 {
		t.Errorf("start-col = %d, want 1", cell.StartCol)
	}
	if cell.BBox != (Rect{X0: 0, Y0: 0, X1: 50, Y1: 50}) {
		t.Errorf("cell bbox = %+v", cell.BBox)
	}
}

func TestParseTablesEmpty(t *testing.T) {
	tables, err := ParseTables("<document></document>")
	if err != nil {
		t.Fatalf("ParseTables() error = %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("got %d tables, want 0", len(tables))
	}
}
