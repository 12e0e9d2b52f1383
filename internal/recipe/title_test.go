package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func titles(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}

	return out
}

func TestResolveTitles_RenamesCollisions(t *testing.T) {
	in := []Record{{Title: "A"}, {Title: "B"}, {Title: "A"}}

	got, renamed := ResolveTitles(in, []string{"A"})

	assert.Equal(t, []string{"A (2)", "B", "A (3)"}, titles(got))
	assert.Equal(t, 2, renamed)
	assert.Equal(t, []string{"A", "B", "A"}, titles(in), "input must not be mutated")
}

func TestResolveTitles(t *testing.T) {
	tests := []struct {
		name        string
		baseline    []string
		incoming    []string
		want        []string
		wantRenamed int
	}{
		{
			name:        "no collisions",
			baseline:    []string{"Soup"},
			incoming:    []string{"Stew", "Salad"},
			want:        []string{"Stew", "Salad"},
			wantRenamed: 0,
		},
		{
			name:        "case and whitespace insensitive",
			baseline:    []string{"Pumpkin  Soup"},
			incoming:    []string{"pumpkin\nsoup"},
			want:        []string{"pumpkin\nsoup (2)"},
			wantRenamed: 1,
		},
		{
			name:        "skips numbers already taken by baseline",
			baseline:    []string{"Bread", "Bread (2)"},
			incoming:    []string{"Bread"},
			want:        []string{"Bread (3)"},
			wantRenamed: 1,
		},
		{
			name:        "duplicates within the batch",
			baseline:    nil,
			incoming:    []string{"Pie", "Pie", "Pie"},
			want:        []string{"Pie", "Pie (2)", "Pie (3)"},
			wantRenamed: 2,
		},
		{
			name:        "renamed title blocks later literal",
			baseline:    []string{"Tart"},
			incoming:    []string{"Tart", "Tart (2)"},
			want:        []string{"Tart (2)", "Tart (2) (2)"},
			wantRenamed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]Record, 0, len(tt.incoming))
			for _, title := range tt.incoming {
				in = append(in, Record{Title: title})
			}

			got, renamed := ResolveTitles(in, tt.baseline)

			assert.Equal(t, tt.want, titles(got))
			assert.Equal(t, tt.wantRenamed, renamed)
		})
	}
}

func TestResolveTitles_KeepsOtherFields(t *testing.T) {
	in := []Record{{Title: "A", Season: "spring", ImageFileName: "a.jpg"}}

	got, _ := ResolveTitles(in, []string{"a"})

	assert.Equal(t, "A (2)", got[0].Title)
	assert.Equal(t, "spring", got[0].Season)
	assert.Equal(t, "a.jpg", got[0].ImageFileName)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "pumpkin soup", NormalizeTitle("  Pumpkin \n\t Soup "))
	assert.Equal(t, "", NormalizeTitle(" \n "))
}

func TestSearchText(t *testing.T) {
	r := Record{
		Title:       "Crème Brûlée",
		Category:    "Dessert",
		Ingredients: []Ingredient{{Name: "Sugar"}, {Name: "Egg  Yolks"}},
	}

	assert.Equal(t, "creme brulee dessert sugar egg yolks", SearchText(r))
}
