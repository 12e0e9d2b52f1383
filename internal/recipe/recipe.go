// Package recipe holds the content record shipped in premium bundles together
// with the pure helpers applied to it before installation: title collision
// resolution and search text normalization.
package recipe

type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

type Usage struct {
	Steps []string `json:"steps,omitempty"`
	Tips  []string `json:"tips,omitempty"`
}

type Storage struct {
	Method   string `json:"method,omitempty"`
	Duration string `json:"duration,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Record is one entry of a bundle's recipes.json.
type Record struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Season      string       `json:"season,omitempty"`
	Region      string       `json:"region,omitempty"`
	Servings    int          `json:"servings,omitempty"`
	PrepMinutes int          `json:"prepMinutes,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
	Usage       *Usage       `json:"usage,omitempty"`
	Storage     *Storage     `json:"storage,omitempty"`
	Equipment   []string     `json:"equipment,omitempty"`

	// ImageFileName names an entry under images/ in the bundle archive.
	ImageFileName string `json:"imageFileName,omitempty"`
}
