package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresSettingRepo はPostgreSQLを使用したプラットフォーム設定リポジトリ。
type PostgresSettingRepo struct {
	db *sql.DB
}

// NewPostgresSettingRepo はPostgresSettingRepoを生成する。
func NewPostgresSettingRepo(db *sql.DB) *PostgresSettingRepo {
	return &PostgresSettingRepo{db: db}
}

// List は全設定をキー順で返す。
func (r *PostgresSettingRepo) List(ctx context.Context) ([]*model.Setting, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*model.Setting
	for rows.Next() {
		s := &model.Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Upsert は設定を冪等に登録・更新する。
func (r *PostgresSettingRepo) Upsert(ctx context.Context, s *model.Setting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.Key, s.Value, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SettingRepository = (*PostgresSettingRepo)(nil)
