package repo

import (
	"context"
	"database/sql"
)

// SettingsRepo stores the single global model settings row.
type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(ctx context.Context) (primary, fallback string, mtime int64, err error) {
	const query = `SELECT primary_model, fallback_model, mtime FROM model_settings WHERE id = 1`
	row := r.db.QueryRowContext(ctx, query)
	if err = row.Scan(&primary, &fallback, &mtime); err != nil {
		if err == sql.ErrNoRows {
			return "", "", 0, nil
		}
		return "", "", 0, err
	}
	return primary, fallback, mtime, nil
}

func (r *SettingsRepo) Save(ctx context.Context, primary, fallback string, mtime int64) error {
	const query = `
		INSERT INTO model_settings (id, primary_model, fallback_model, mtime)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			primary_model = EXCLUDED.primary_model,
			fallback_model = EXCLUDED.fallback_model,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, primary, fallback, mtime)
	return err
}
