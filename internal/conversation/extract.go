package conversation

import (
	"strconv"
	"strings"
)

// ExtractNumber scans free text for the first decimal number and returns it.
// Thousands-separator commas are removed before tokenizing, and surrounding
// punctuation is stripped from each token, so "65,000 dollars!" yields 65000.
//
// keywords is reserved for anchored extraction ("price", "quantity", ...);
// the current policy deliberately ignores it and always returns the first
// number in reading order, so callers must not assume keyword proximity.
func ExtractNumber(text string, keywords []string) (float64, bool) {
	words := strings.Fields(strings.ReplaceAll(text, ",", ""))
	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?$%()")
		num, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		return num, true
	}
	return 0, false
}
