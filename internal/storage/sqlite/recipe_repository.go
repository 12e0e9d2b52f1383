package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/italolelis/bundle_installer/internal/recipe"
	"github.com/italolelis/bundle_installer/internal/storage"
)

const recipeColumns = `title, description, category, season, region, servings, prep_minutes,
	ingredients, usage, storage, equipment, search_text, sort_key, is_premium, image_path`

// RecipeRepository implements storage.RecipeRepository.
type RecipeRepository struct {
	db *sql.DB
}

func NewRecipeRepository(db *sql.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

func (r *RecipeRepository) BaselineTitles(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT title FROM recipes WHERE is_premium = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline titles: %w", err)
	}
	defer rows.Close()

	var titles []string

	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan baseline title: %w", err)
		}

		titles = append(titles, title)
	}

	return titles, rows.Err()
}

// ReplacePremium deletes every premium row and inserts rows within a single
// transaction. Baseline rows are never touched; rows are always stored as premium.
func (r *RecipeRepository) ReplacePremium(ctx context.Context, rows []storage.RecipeRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE is_premium = 1`); err != nil {
		return fmt.Errorf("failed to delete premium recipes: %w", err)
	}

	for i := range rows {
		row := rows[i]
		row.IsPremium = true

		if err := insertRecipe(ctx, tx, row); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit premium recipes: %w", err)
	}

	return nil
}

// InsertBaseline adds non-premium rows, used to seed the store.
func (r *RecipeRepository) InsertBaseline(ctx context.Context, rows []storage.RecipeRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range rows {
		row := rows[i]
		row.IsPremium = false

		if err := insertRecipe(ctx, tx, row); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baseline recipes: %w", err)
	}

	return nil
}

func (r *RecipeRepository) PremiumRecipes(ctx context.Context) ([]storage.RecipeRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE is_premium = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query premium recipes: %w", err)
	}
	defer rows.Close()

	var result []storage.RecipeRow

	for rows.Next() {
		row, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, row)
	}

	return result, rows.Err()
}

func insertRecipe(ctx context.Context, tx *sql.Tx, row storage.RecipeRow) error {
	ingredients, err := jsonColumn(row.Ingredients, len(row.Ingredients) == 0)
	if err != nil {
		return err
	}

	usage, err := jsonColumn(row.Usage, row.Usage == nil)
	if err != nil {
		return err
	}

	storageCol, err := jsonColumn(row.Storage, row.Storage == nil)
	if err != nil {
		return err
	}

	equipment, err := jsonColumn(row.Equipment, len(row.Equipment) == 0)
	if err != nil {
		return err
	}

	var imagePath sql.NullString
	if row.ImagePath != nil {
		imagePath = sql.NullString{String: *row.ImagePath, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO recipes (`+recipeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Title, row.Description, row.Category, row.Season, row.Region, row.Servings, row.PrepMinutes,
		ingredients, usage, storageCol, equipment, row.SearchText, int64(row.SortKey), row.IsPremium, imagePath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recipe %q: %w", row.Title, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(s scanner) (storage.RecipeRow, error) {
	var (
		row                                       storage.RecipeRow
		description, category, season, region     sql.NullString
		ingredients, usage, storageCol, equipment sql.NullString
		searchText, imagePath                     sql.NullString
		servings, prepMinutes                     sql.NullInt64
		sortKey                                   int64
	)

	err := s.Scan(&row.Title, &description, &category, &season, &region, &servings, &prepMinutes,
		&ingredients, &usage, &storageCol, &equipment, &searchText, &sortKey, &row.IsPremium, &imagePath)
	if err != nil {
		return storage.RecipeRow{}, fmt.Errorf("failed to scan recipe: %w", err)
	}

	row.Description = description.String
	row.Category = category.String
	row.Season = season.String
	row.Region = region.String
	row.Servings = int(servings.Int64)
	row.PrepMinutes = int(prepMinutes.Int64)
	row.SearchText = searchText.String
	row.SortKey = uint32(sortKey)

	if imagePath.Valid {
		row.ImagePath = &imagePath.String
	}

	if err := decodeColumn(ingredients, &row.Ingredients); err != nil {
		return storage.RecipeRow{}, err
	}

	if err := decodeColumn(equipment, &row.Equipment); err != nil {
		return storage.RecipeRow{}, err
	}

	if usage.Valid {
		row.Usage = &recipe.Usage{}
		if err := decodeColumn(usage, row.Usage); err != nil {
			return storage.RecipeRow{}, err
		}
	}

	if storageCol.Valid {
		row.Storage = &recipe.Storage{}
		if err := decodeColumn(storageCol, row.Storage); err != nil {
			return storage.RecipeRow{}, err
		}
	}

	return row, nil
}

// jsonColumn serializes v, or stores NULL when empty is set.
func jsonColumn(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode recipe column: %w", err)
	}

	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeColumn(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}

	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("failed to decode recipe column: %w", err)
	}

	return nil
}
