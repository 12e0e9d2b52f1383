package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/bundle_installer/internal/storage"
)

const (
	keyStatus           = "premium.status"
	keyProgress         = "premium.progress"
	keyError            = "premium.error"
	keyInstalledVersion = "premium.installed_version"
	keyBundleURL        = "premium.bundle_url"
	keyBundleVersion    = "premium.bundle_version"
	keyBundleChecksum   = "premium.bundle_checksum"
)

// PreferencesRepository implements storage.PreferencesRepository on a
// key/value table.
type PreferencesRepository struct {
	db *sql.DB
}

func NewPreferencesRepository(db *sql.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

func (r *PreferencesRepository) Status(ctx context.Context) (storage.Status, error) {
	v, err := r.get(ctx, keyStatus)
	if err != nil {
		return "", err
	}

	if v == nil {
		return storage.StatusNotDownloaded, nil
	}

	return storage.ParseStatus(*v)
}

func (r *PreferencesRepository) SetStatus(ctx context.Context, status storage.Status) error {
	s := string(status)

	return r.set(ctx, keyStatus, &s)
}

func (r *PreferencesRepository) Progress(ctx context.Context) (*int, error) {
	v, err := r.get(ctx, keyProgress)
	if err != nil || v == nil {
		return nil, err
	}

	p, err := strconv.Atoi(*v)
	if err != nil {
		return nil, fmt.Errorf("failed to parse progress %q: %w", *v, err)
	}

	return &p, nil
}

// SetProgress stores progress clamped to [0,100]; nil clears it.
func (r *PreferencesRepository) SetProgress(ctx context.Context, progress *int) error {
	if progress == nil {
		return r.set(ctx, keyProgress, nil)
	}

	s := strconv.Itoa(min(max(*progress, 0), 100))

	return r.set(ctx, keyProgress, &s)
}

func (r *PreferencesRepository) Error(ctx context.Context) (*string, error) {
	return r.get(ctx, keyError)
}

// SetError stores the trimmed message. Empty messages are stored as null.
func (r *PreferencesRepository) SetError(ctx context.Context, message *string) error {
	return r.set(ctx, keyError, trimmed(message))
}

func (r *PreferencesRepository) InstalledVersion(ctx context.Context) (*string, error) {
	return r.get(ctx, keyInstalledVersion)
}

func (r *PreferencesRepository) SetInstalledVersion(ctx context.Context, version string) error {
	return r.set(ctx, keyInstalledVersion, trimmed(&version))
}

func (r *PreferencesRepository) Descriptor(ctx context.Context) (storage.Descriptor, error) {
	var d storage.Descriptor

	for key, dst := range map[string]*string{
		keyBundleURL:      &d.URL,
		keyBundleVersion:  &d.Version,
		keyBundleChecksum: &d.Checksum,
	} {
		v, err := r.get(ctx, key)
		if err != nil {
			return storage.Descriptor{}, err
		}

		if v != nil {
			*dst = *v
		}
	}

	return d, nil
}

// SetDescriptor writes all descriptor fields in one transaction.
func (r *PreferencesRepository) SetDescriptor(ctx context.Context, d storage.Descriptor) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range map[string]string{
		keyBundleURL:      d.URL,
		keyBundleVersion:  d.Version,
		keyBundleChecksum: d.Checksum,
	} {
		if err := upsert(ctx, tx, key, trimmed(&value)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit descriptor: %w", err)
	}

	return nil
}

func (r *PreferencesRepository) get(ctx context.Context, key string) (*string, error) {
	var v sql.NullString

	err := r.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read preference %s: %w", key, err)
	}

	if !v.Valid {
		return nil, nil
	}

	return &v.String, nil
}

func (r *PreferencesRepository) set(ctx context.Context, key string, value *string) error {
	return upsert(ctx, r.db, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key string, value *string) error {
	var v sql.NullString
	if value != nil {
		v = sql.NullString{String: *value, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, v, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}

	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}

	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}

	return &t
}
