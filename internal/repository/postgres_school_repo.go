package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresSchoolRepo はPostgreSQLを使用した学校プロフィールリポジトリ。
type PostgresSchoolRepo struct {
	db *sql.DB
}

// NewPostgresSchoolRepo はPostgresSchoolRepoを生成する。
func NewPostgresSchoolRepo(db *sql.DB) *PostgresSchoolRepo {
	return &PostgresSchoolRepo{db: db}
}

func scanSchool(row interface{ Scan(...interface{}) error }) (*model.School, error) {
	s := &model.School{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID は指定IDの学校を取得する。見つからない場合はnilを返す。
func (r *PostgresSchoolRepo) FindByID(ctx context.Context, id string) (*model.School, error) {
	s, err := scanSchool(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM schools WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find school: %w", err)
	}
	return s, nil
}

// FindByUserID はユーザーIDから学校を取得する。見つからない場合はnilを返す。
func (r *PostgresSchoolRepo) FindByUserID(ctx context.Context, userID string) (*model.School, error) {
	s, err := scanSchool(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM schools WHERE user_id = $1`, userID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find school by user ID: %w", err)
	}
	return s, nil
}

// List は学校一覧を名前順で返す。
func (r *PostgresSchoolRepo) List(ctx context.Context) ([]*model.School, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM schools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schools: %w", err)
	}
	defer rows.Close()

	var schools []*model.School
	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan school: %w", err)
		}
		schools = append(schools, s)
	}
	return schools, rows.Err()
}

// Create は学校プロフィールを作成する。
func (r *PostgresSchoolRepo) Create(ctx context.Context, s *model.School) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schools (id, user_id, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Name, s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert school: %w", err)
	}
	return nil
}

// Update は学校名を更新する。
func (r *PostgresSchoolRepo) Update(ctx context.Context, s *model.School) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE schools SET name = $2, updated_at = $3 WHERE id = $1`,
		s.ID, s.Name, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update school: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ SchoolRepository = (*PostgresSchoolRepo)(nil)
