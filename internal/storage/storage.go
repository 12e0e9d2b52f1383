package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/bundle_installer/internal/recipe"
)

// Status is the lifecycle state of the premium bundle.
type Status string

const (
	StatusNotDownloaded Status = "not-downloaded"
	StatusDownloading   Status = "downloading"
	StatusPaused        Status = "paused"
	StatusFailed        Status = "failed"
	StatusReady         Status = "ready"
)

var ErrInvalidStatus = errors.New("invalid bundle status")

// ParseStatus converts a persisted value back into a Status. An empty value
// reads as StatusNotDownloaded.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "":
		return StatusNotDownloaded, nil
	case StatusNotDownloaded, StatusDownloading, StatusPaused, StatusFailed, StatusReady:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Descriptor locates the bundle to install. It is supplied by the redemption
// flow before the first install.
type Descriptor struct {
	URL      string `json:"url"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

// RecipeRow is a recipe as persisted in the local store.
type RecipeRow struct {
	recipe.Record

	SearchText string
	SortKey    uint32
	IsPremium  bool
	ImagePath  *string
}

// PreferencesRepository persists the premium bundle state as individual keys.
type PreferencesRepository interface {
	Status(ctx context.Context) (Status, error)
	SetStatus(ctx context.Context, status Status) error
	Progress(ctx context.Context) (*int, error)
	SetProgress(ctx context.Context, progress *int) error
	Error(ctx context.Context) (*string, error)
	SetError(ctx context.Context, message *string) error
	InstalledVersion(ctx context.Context) (*string, error)
	SetInstalledVersion(ctx context.Context, version string) error
	Descriptor(ctx context.Context) (Descriptor, error)
	SetDescriptor(ctx context.Context, d Descriptor) error
}

// RecipeRepository reads and writes recipe rows.
type RecipeRepository interface {
	BaselineTitles(ctx context.Context) ([]string, error)
	// ReplacePremium deletes every premium row and inserts rows in one transaction.
	ReplacePremium(ctx context.Context, rows []RecipeRow) error
	PremiumRecipes(ctx context.Context) ([]RecipeRow, error)
	InsertBaseline(ctx context.Context, rows []RecipeRow) error
}
