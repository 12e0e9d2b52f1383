package sortkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fnv1a is the reference loop the stored keys were originally computed with.
func fnv1a(s string) uint32 {
	hash := uint32(0x811c9dc5)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 0x01000193
	}

	return hash
}

func TestDerive_Stable(t *testing.T) {
	a := Derive("Pumpkin Soup", "autumn", "north")
	b := Derive("Pumpkin Soup", "autumn", "north")

	assert.Equal(t, a, b)
}

func TestDerive_MatchesReferenceLoop(t *testing.T) {
	tests := []struct {
		title, season, region string
	}{
		{"Pumpkin Soup", "autumn", "north"},
		{"", "", ""},
		{"Crème brûlée", "winter", "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			want := fnv1a(tt.title + "|" + tt.season + "|" + tt.region)
			assert.Equal(t, want, Derive(tt.title, tt.season, tt.region))
		})
	}
}

func TestDerive_EmptyInputIsOffsetPlusSeparators(t *testing.T) {
	assert.Equal(t, fnv1a("||"), Derive("", "", ""))
	assert.NotEqual(t, uint32(0x811c9dc5), Derive("", "", ""))
}

func TestDerive_ChangesWithEachInput(t *testing.T) {
	base := Derive("Pumpkin Soup", "autumn", "north")

	assert.NotEqual(t, base, Derive("Pumpkin Soup!", "autumn", "north"))
	assert.NotEqual(t, base, Derive("Pumpkin Soup", "winter", "north"))
	assert.NotEqual(t, base, Derive("Pumpkin Soup", "autumn", "south"))
}
