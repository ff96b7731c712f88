package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresEvaluationRepo はPostgreSQLを使用した評価リポジトリ。
type PostgresEvaluationRepo struct {
	db *sql.DB
}

// NewPostgresEvaluationRepo はPostgresEvaluationRepoを生成する。
func NewPostgresEvaluationRepo(db *sql.DB) *PostgresEvaluationRepo {
	return &PostgresEvaluationRepo{db: db}
}

// evaluationSelect は評価→応募→募集を結合し、スコープ判定に必要な列を含めるSELECTビルダ。
func evaluationSelect() squirrel.SelectBuilder {
	return psql.Select(
		"e.id", "e.application_id", "e.supervisor_id", "e.score", "e.comment", "e.evaluated_at", "e.updated_at",
		"a.student_id", "a.offer_id", "o.company_id",
	).
		From("evaluations e").
		Join("applications a ON a.id = e.application_id").
		Join("offers o ON o.id = a.offer_id")
}

func scanEvaluationWithScope(row interface{ Scan(...interface{}) error }) (*model.EvaluationWithScope, error) {
	e := &model.EvaluationWithScope{}
	var comment sql.NullString
	if err := row.Scan(&e.ID, &e.ApplicationID, &e.SupervisorID, &e.Score, &comment, &e.EvaluatedAt, &e.UpdatedAt,
		&e.StudentID, &e.OfferID, &e.CompanyID); err != nil {
		return nil, err
	}
	if comment.Valid {
		e.Comment = &comment.String
	}
	return e, nil
}

// FindByID は評価を応募先企業付きで取得する。見つからない場合はnilを返す。
func (r *PostgresEvaluationRepo) FindByID(ctx context.Context, id string) (*model.EvaluationWithScope, error) {
	query, args, err := evaluationSelect().Where(squirrel.Eq{"e.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation query: %w", err)
	}
	e, err := scanEvaluationWithScope(r.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find evaluation: %w", err)
	}
	return e, nil
}

// FindByApplicationID は応募IDで評価を検索する。見つからない場合はnilを返す。
func (r *PostgresEvaluationRepo) FindByApplicationID(ctx context.Context, applicationID string) (*model.Evaluation, error) {
	e := &model.Evaluation{}
	var comment sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, application_id, supervisor_id, score, comment, evaluated_at, updated_at
		 FROM evaluations WHERE application_id = $1`,
		applicationID,
	).Scan(&e.ID, &e.ApplicationID, &e.SupervisorID, &e.Score, &comment, &e.EvaluatedAt, &e.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find evaluation by application: %w", err)
	}
	if comment.Valid {
		e.Comment = &comment.String
	}
	return e, nil
}

// List はスコープ条件に一致する評価をevaluated_at降順で返す。
func (r *PostgresEvaluationRepo) List(ctx context.Context, filter model.EvaluationFilter) ([]*model.EvaluationWithScope, error) {
	where := squirrel.Eq{}
	if filter.CompanyID != nil {
		where["o.company_id"] = *filter.CompanyID
	}
	if filter.StudentID != nil {
		where["a.student_id"] = *filter.StudentID
	}
	if filter.ApplicationID != nil {
		where["e.application_id"] = *filter.ApplicationID
	}

	q := evaluationSelect()
	if len(where) > 0 {
		q = q.Where(where)
	}
	query, args, err := q.OrderBy("e.evaluated_at DESC", "e.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []*model.EvaluationWithScope
	for rows.Next() {
		e, err := scanEvaluationWithScope(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, rows.Err()
}

// Create は評価を作成する。application_idの一意制約違反はErrDuplicateを返す。
func (r *PostgresEvaluationRepo) Create(ctx context.Context, e *model.Evaluation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, application_id, supervisor_id, score, comment, evaluated_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ApplicationID, e.SupervisorID, e.Score, e.Comment, e.EvaluatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// Update はスコアとコメントを更新する。
func (r *PostgresEvaluationRepo) Update(ctx context.Context, e *model.Evaluation) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE evaluations SET score = $2, comment = $3, updated_at = $4 WHERE id = $1`,
		e.ID, e.Score, e.Comment, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}
	return expectAffected(result)
}

// Delete は評価を削除する。
func (r *PostgresEvaluationRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ EvaluationRepository = (*PostgresEvaluationRepo)(nil)
