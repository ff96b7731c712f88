package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresSupervisorRepo はPostgreSQLを使用した指導担当者リポジトリ。
type PostgresSupervisorRepo struct {
	db *sql.DB
}

// NewPostgresSupervisorRepo はPostgresSupervisorRepoを生成する。
func NewPostgresSupervisorRepo(db *sql.DB) *PostgresSupervisorRepo {
	return &PostgresSupervisorRepo{db: db}
}

var supervisorColumns = []string{
	"id", "user_id", "company_id", "first_name", "last_name", "position", "created_at", "updated_at",
}

func scanSupervisor(row interface{ Scan(...interface{}) error }) (*model.Supervisor, error) {
	s := &model.Supervisor{}
	if err := row.Scan(&s.ID, &s.UserID, &s.CompanyID, &s.FirstName, &s.LastName, &s.Position, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresSupervisorRepo) findOne(ctx context.Context, where squirrel.Eq) (*model.Supervisor, error) {
	query, args, err := psql.Select(supervisorColumns...).From("supervisors").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build supervisor query: %w", err)
	}
	s, err := scanSupervisor(r.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find supervisor: %w", err)
	}
	return s, nil
}

// FindByID は指定IDの指導担当者を取得する。見つからない場合はnilを返す。
func (r *PostgresSupervisorRepo) FindByID(ctx context.Context, id string) (*model.Supervisor, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByUserID はユーザーIDから指導担当者を取得する。見つからない場合はnilを返す。
func (r *PostgresSupervisorRepo) FindByUserID(ctx context.Context, userID string) (*model.Supervisor, error) {
	return r.findOne(ctx, squirrel.Eq{"user_id": userID})
}

// List は指導担当者一覧を返す。companyIDが指定された場合はその企業の担当者のみ。
func (r *PostgresSupervisorRepo) List(ctx context.Context, companyID *string) ([]*model.Supervisor, error) {
	q := psql.Select(supervisorColumns...).From("supervisors")
	if companyID != nil {
		q = q.Where(squirrel.Eq{"company_id": *companyID})
	}
	query, args, err := q.OrderBy("last_name", "first_name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build supervisor query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list supervisors: %w", err)
	}
	defer rows.Close()

	var supervisors []*model.Supervisor
	for rows.Next() {
		s, err := scanSupervisor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supervisor: %w", err)
		}
		supervisors = append(supervisors, s)
	}
	return supervisors, rows.Err()
}

// Update は指導担当者の氏名と役職を更新する。所属企業は変更しない。
func (r *PostgresSupervisorRepo) Update(ctx context.Context, s *model.Supervisor) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE supervisors
		 SET first_name = $2, last_name = $3, position = $4, updated_at = $5
		 WHERE id = $1`,
		s.ID, s.FirstName, s.LastName, s.Position, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update supervisor: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ SupervisorRepository = (*PostgresSupervisorRepo)(nil)
