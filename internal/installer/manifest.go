package installer

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"strings"

	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/recipe"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

const (
	recipesEntry  = "recipes.json"
	metadataEntry = "metadata.json"
	versionEntry  = "version.txt"
	imagesDir     = "images"

	// UnknownVersion is recorded when a bundle carries no version information.
	UnknownVersion = "unknown"
)

type metadata struct {
	Version string `json:"version"`
}

// readRecipes parses recipes.json at the archive root.
func readRecipes(fsys fs.FS) ([]recipe.Record, error) {
	data, err := fs.ReadFile(fsys, recipesEntry)
	if err != nil {
		reason := "unreadable entry"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "entry not found"
		}

		return nil, &transfer.ManifestError{Entry: recipesEntry, Reason: reason, Err: err}
	}

	var records []recipe.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &transfer.ManifestError{Entry: recipesEntry, Reason: "malformed json", Err: err}
	}

	return records, nil
}

// readVersion returns the version from metadata.json, then version.txt, then
// UnknownVersion. Blank values count as absent.
func readVersion(ctx context.Context, fsys fs.FS) string {
	logger := logctx.LoggerFromContext(ctx)

	if data, err := fs.ReadFile(fsys, metadataEntry); err == nil {
		var meta metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			logger.Warn("ignoring malformed bundle metadata", "entry", metadataEntry, "err", err)
		} else if v := strings.TrimSpace(meta.Version); v != "" {
			return v
		}
	}

	if data, err := fs.ReadFile(fsys, versionEntry); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}

	return UnknownVersion
}
