package recipe

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle returns the comparison form of a title: NFC, whitespace and
// newline runs collapsed to a single space, trimmed and lower-cased.
func NormalizeTitle(title string) string {
	collapsed := strings.Join(strings.Fields(norm.NFC.String(title)), " ")

	return toLower(collapsed)
}

// Casers are stateful, so each call gets its own.
func toLower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// ResolveTitles renames incoming records whose title collides with a baseline
// title or with an earlier record of the same batch by appending " (2)", " (3)"
// and so on. The input slice is left untouched and order is preserved.
// It returns the resolved records and how many of them were renamed.
func ResolveTitles(records []Record, baselineTitles []string) ([]Record, int) {
	used := make(map[string]struct{}, len(baselineTitles)+len(records))
	for _, title := range baselineTitles {
		used[NormalizeTitle(title)] = struct{}{}
	}

	resolved := make([]Record, len(records))
	renamed := 0

	for i, rec := range records {
		key := NormalizeTitle(rec.Title)

		if _, taken := used[key]; taken {
			for n := 2; ; n++ {
				candidate := rec.Title + " (" + strconv.Itoa(n) + ")"
				candidateKey := NormalizeTitle(candidate)

				if _, taken := used[candidateKey]; !taken {
					rec.Title = candidate
					key = candidateKey
					renamed++

					break
				}
			}
		}

		used[key] = struct{}{}
		resolved[i] = rec
	}

	return resolved, renamed
}
