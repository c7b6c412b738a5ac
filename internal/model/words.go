package model

import (
	"strings"
	"unicode/utf8"
)

// FreePageWordThreshold is the minimum recognized word count for a page
// to be billable. Pages below it are free.
const FreePageWordThreshold = 50

// Digits and noise characters stripped before counting. Includes
// Arabic-Indic digits since most recognized text is Kurdish/Arabic.
const strippedChars = "٠١٢٣٤٥٦٧٨٩0123456789-()*&%$#@!"

// Word delimiters: whitespace plus Latin and Arabic sentence punctuation.
const wordDelimiters = " \n\r.،,؛:;"

// CountWords counts the billable words in recognized text. Digits and
// punctuation are stripped first, then tokens shorter than 3 runes are
// ignored so stray marks don't count as words.
func CountWords(text string) int {
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedChars, r) {
			return -1
		}
		return r
	}, text)

	count := 0
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(wordDelimiters, r)
	}) {
		if utf8.RuneCountInString(token) >= 3 {
			count++
		}
	}
	return count
}

// NormalizeLanguages cleans up a job's requested OCR language set.
// Sorani models already cover Arabic script, so requesting both "ckb"
// and "ara" is redundant and "ara" is dropped. An empty set defaults
// to "ckb".
func NormalizeLanguages(langs []string) []string {
	if len(langs) == 0 {
		return []string{"ckb"}
	}

	hasCkb, hasAra := false, false
	for _, l := range langs {
		switch strings.ToLower(l) {
		case "ckb":
			hasCkb = true
		case "ara":
			hasAra = true
		}
	}

	if hasCkb && hasAra {
		filtered := make([]string, 0, len(langs)-1)
		for _, l := range langs {
			if strings.ToLower(l) != "ara" {
				filtered = append(filtered, l)
			}
		}
		return filtered
	}

	return langs
}
