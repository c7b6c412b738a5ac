package model

import (
	"strings"
	"testing"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"simple", "hello there world", 3},
		{"short tokens ignored", "an is to the cat", 1},
		{"digits stripped", "123 4567 89", 0},
		{"arabic indic digits stripped", "٠١٢ ٣٤٥٦", 0},
		{"punctuation delimiters", "first.second،third؛fourth", 4},
		{"noise characters", "(word) *word* #word!", 3},
		{"newlines", "word\nword\rword", 3},
		{"kurdish text", "ئەمە دەقێکی تاقیکردنەوەیە بۆ ژماردن", 4},
		{"digit glued to word", "page123 456word", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountWords(tt.text); got != tt.want {
				t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountWordsThreshold(t *testing.T) {
	// 60 words of length >= 3 must cross the free-page threshold.
	text := strings.Repeat("word ", 60)
	if got := CountWords(text); got != 60 {
		t.Fatalf("CountWords = %d, want 60", got)
	}
	if CountWords(text) < FreePageWordThreshold {
		t.Error("60 words should not classify as free")
	}
}

func TestNormalizeLanguages(t *testing.T) {
	tests := []struct {
		name  string
		langs []string
		want  []string
	}{
		{"empty defaults to ckb", nil, []string{"ckb"}},
		{"ckb and ara drops ara", []string{"ckb", "ara"}, []string{"ckb"}},
		{"order does not matter", []string{"ara", "ckb"}, []string{"ckb"}},
		{"ara alone kept", []string{"ara"}, []string{"ara"}},
		{"unrelated languages untouched", []string{"eng", "deu"}, []string{"eng", "deu"}},
		{"ckb with eng kept", []string{"ckb", "eng"}, []string{"ckb", "eng"}},
		{"case insensitive", []string{"CKB", "ARA"}, []string{"CKB"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLanguages(tt.langs)
			if len(got) != len(tt.want) {
				t.Fatalf("NormalizeLanguages(%v) = %v, want %v", tt.langs, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("NormalizeLanguages(%v) = %v, want %v", tt.langs, got, tt.want)
				}
			}
		})
	}
}

func TestJobLanguages(t *testing.T) {
	job := &Job{Lang: "ckb, ara"}
	langs := job.Languages()
	if len(langs) != 2 || langs[0] != "ckb" || langs[1] != "ara" {
		t.Errorf("Languages() = %v, want [ckb ara]", langs)
	}

	job = &Job{}
	if langs := job.Languages(); langs != nil {
		t.Errorf("Languages() on empty lang = %v, want nil", langs)
	}
}

func TestJobHasFinished(t *testing.T) {
	for _, status := range []string{StatusQueued, StatusProcessing} {
		if (&Job{Status: status}).HasFinished() {
			t.Errorf("status %q should not be finished", status)
		}
	}
	for _, status := range []string{StatusCompleted, StatusFailed} {
		if !(&Job{Status: status}).HasFinished() {
			t.Errorf("status %q should be finished", status)
		}
	}
}
