package hocr

import (
	"reflect"
	"testing"
)

const sampleMarkup = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<body>
 <div class="ocr_page" id="page_1" title="image p.png; bbox 0 0 1000 1500; ppageno 0">
  <div class="ocr_carea" title="bbox 10 10 900 400">
   <p class="ocr_par" dir="rtl" lang="ckb" title="bbox 10 10 900 200">
    <span class="ocr_line" title="bbox 10 10 900 60; baseline 0 -8">
     <span class="ocrx_word" title="bbox 700 10 900 60; x_wconf 95; x_fsize 14">سڵاو</span>
     <span class="ocrx_word" title="bbox 500 10 690 60; x_wconf 42">جیهان</span>
    </span>
    <span class="ocr_line" title="bbox 10 70 900 130">
     <span class="ocrx_word" title="bbox 650 70 900 130; x_wconf 88; x_fsize 14">دووەم</span>
    </span>
   </p>
   <p class="ocr_par" lang="eng" title="bbox 10 250 900 400">
    <span class="ocr_line" title="bbox 10 250 900 300">
     <span class="ocrx_word" title="bbox 10 250 200 300; x_wconf notanumber; x_fsize 12">hello</span>
     <span class="ocrx_word" title="bbox broken values here">world</span>
    </span>
   </p>
  </div>
 </div>
</body>
</html>`

func TestParse(t *testing.T) {
	page := Parse(sampleMarkup, true)
	if page == nil {
		t.Fatal("Parse returned nil for well-formed markup")
	}
	if !page.PredictSizes {
		t.Error("PredictSizes not carried through")
	}
	if len(page.Paragraphs) != 2 {
		t.Fatalf("got %d paragraphs, want 2", len(page.Paragraphs))
	}

	rtl := page.Paragraphs[0]
	if rtl.Direction != RightToLeft {
		t.Error("first paragraph should be right-to-left")
	}
	if rtl.Lang != "ckb" {
		t.Errorf("lang = %q, want ckb", rtl.Lang)
	}
	if rtl.BBox == nil || rtl.BBox.X1 != 900 || rtl.BBox.Y1 != 200 {
		t.Errorf("paragraph bbox = %+v, want (10,10,900,200)", rtl.BBox)
	}
	if len(rtl.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(rtl.Lines))
	}
	if len(rtl.Lines[0].Words) != 2 {
		t.Fatalf("got %d words in first line, want 2", len(rtl.Lines[0].Words))
	}

	word := rtl.Lines[0].Words[0]
	if word.Text != "سڵاو" {
		t.Errorf("word text = %q", word.Text)
	}
	if word.Confidence == nil || *word.Confidence != 95 {
		t.Errorf("confidence = %v, want 95", word.Confidence)
	}
	if word.FontSize == nil || *word.FontSize != 14 {
		t.Errorf("font size = %v, want 14", word.FontSize)
	}
	if word.BBox == nil || word.BBox.X0 != 700 {
		t.Errorf("bbox = %+v", word.BBox)
	}

	ltr := page.Paragraphs[1]
	if ltr.Direction != LeftToRight {
		t.Error("second paragraph should be left-to-right")
	}
	noConf := ltr.Lines[0].Words[0]
	if noConf.Confidence != nil {
		t.Errorf("unparsable confidence should be nil, got %v", *noConf.Confidence)
	}
	if noConf.FontSize == nil || *noConf.FontSize != 12 {
		t.Errorf("font size = %v, want 12", noConf.FontSize)
	}
	broken := ltr.Lines[0].Words[1]
	if broken.BBox != nil {
		t.Errorf("broken bbox should be nil, got %+v", broken.BBox)
	}
}

func TestParseDeterministic(t *testing.T) {
	first := Parse(sampleMarkup, false)
	second := Parse(sampleMarkup, false)
	if !reflect.DeepEqual(first, second) {
		t.Error("parsing the same markup twice yielded different trees")
	}
}

func TestParseNoPage(t *testing.T) {
	for _, markup := range []string{
		"",
		"<html><body><p>no ocr here</p></body></html>",
		"garbage <<< not markup",
	} {
		if page := Parse(markup, false); page != nil {
			t.Errorf("Parse(%q) = %+v, want nil", markup, page)
		}
	}
}

func TestParseTitle(t *testing.T) {
	props := parseTitle("bbox 0 0 100 30; x_wconf 93; x_fsize 12")
	if props["bbox"] != "0 0 100 30" {
		t.Errorf("bbox = %q", props["bbox"])
	}
	if props["x_wconf"] != "93" {
		t.Errorf("x_wconf = %q", props["x_wconf"])
	}

	// Entries without a value are skipped, not fatal.
	props = parseTitle("bbox; ;x_wconf 50")
	if _, ok := props["bbox"]; ok {
		t.Error("valueless property should be skipped")
	}
	if props["x_wconf"] != "50" {
		t.Errorf("x_wconf = %q, want 50", props["x_wconf"])
	}
}

func TestRectAlmostContains(t *testing.T) {
	outer := Rect{X0: 0, Y0: 0, X1: 1000, Y1: 500}

	if !outer.AlmostContains(Rect{X0: 100, Y0: 100, X1: 400, Y1: 200}) {
		t.Error("fully contained rect rejected")
	}
	// Slight overhang within slack is tolerated.
	if !outer.AlmostContains(Rect{X0: -5, Y0: 0, X1: 400, Y1: 200}) {
		t.Error("rect within slack margin rejected")
	}
	if outer.AlmostContains(Rect{X0: 500, Y0: 100, X1: 1500, Y1: 200}) {
		t.Error("rect far outside accepted")
	}
}

func TestRectContainsCenter(t *testing.T) {
	cell := Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}
	if !cell.ContainsCenter(Rect{X0: 40, Y0: 40, X1: 60, Y1: 60}) {
		t.Error("centered word rejected")
	}
	if cell.ContainsCenter(Rect{X0: 90, Y0: 90, X1: 200, Y1: 200}) {
		t.Error("word with outside center accepted")
	}
}
