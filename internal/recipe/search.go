package recipe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSearch folds text for accent-insensitive, case-insensitive matching.
func NormalizeSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return toLower(strings.Join(strings.Fields(folded), " "))
}

// SearchText builds the indexed search string for a record from its title,
// category and ingredient names.
func SearchText(r Record) string {
	parts := make([]string, 0, len(r.Ingredients)+2)
	parts = append(parts, r.Title, r.Category)

	for _, ing := range r.Ingredients {
		parts = append(parts, ing.Name)
	}

	return NormalizeSearch(strings.Join(parts, " "))
}
