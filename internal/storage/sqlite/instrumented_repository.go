package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/telemetry"
)

// InstrumentedRecipeRepository wraps RecipeRepository with telemetry.
type InstrumentedRecipeRepository struct {
	repo      *RecipeRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRecipeRepository creates a new instrumented recipe repository.
func NewInstrumentedRecipeRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRecipeRepository {
	return &InstrumentedRecipeRepository{
		repo:      NewRecipeRepository(dbConn),
		telemetry: tel,
	}
}

// BaselineTitles retrieves baseline titles with telemetry.
func (r *InstrumentedRecipeRepository) BaselineTitles(ctx context.Context) ([]string, error) {
	var result []string

	err := r.telemetry.InstrumentDBOperation(ctx, "baseline_titles", func(ctx context.Context) error {
		var err error

		result, err = r.repo.BaselineTitles(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ReplacePremium replaces premium recipes with telemetry.
func (r *InstrumentedRecipeRepository) ReplacePremium(ctx context.Context, rows []storage.RecipeRow) error {
	return r.telemetry.InstrumentDBOperation(ctx, "replace_premium", func(ctx context.Context) error {
		return r.repo.ReplacePremium(ctx, rows)
	})
}

// PremiumRecipes lists premium recipes with telemetry.
func (r *InstrumentedRecipeRepository) PremiumRecipes(ctx context.Context) ([]storage.RecipeRow, error) {
	var result []storage.RecipeRow

	err := r.telemetry.InstrumentDBOperation(ctx, "premium_recipes", func(ctx context.Context) error {
		var err error

		result, err = r.repo.PremiumRecipes(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// InsertBaseline inserts baseline recipes with telemetry.
func (r *InstrumentedRecipeRepository) InsertBaseline(ctx context.Context, rows []storage.RecipeRow) error {
	return r.telemetry.InstrumentDBOperation(ctx, "insert_baseline", func(ctx context.Context) error {
		return r.repo.InsertBaseline(ctx, rows)
	})
}
