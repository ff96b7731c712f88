package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した応募リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

// applicationSelect は応募と募集の所有企業を結合するSELECTビルダ。
func applicationSelect() squirrel.SelectBuilder {
	return psql.Select(
		"a.id", "a.student_id", "a.offer_id", "a.status", "a.applied_at", "a.updated_at",
		"o.company_id", "o.title",
	).
		From("applications a").
		Join("offers o ON o.id = a.offer_id")
}

func scanApplicationWithOffer(row interface{ Scan(...interface{}) error }) (*model.ApplicationWithOffer, error) {
	a := &model.ApplicationWithOffer{}
	var status string
	if err := row.Scan(&a.ID, &a.StudentID, &a.OfferID, &status, &a.AppliedAt, &a.UpdatedAt, &a.CompanyID, &a.OfferTitle); err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	return a, nil
}

func (r *PostgresApplicationRepo) query(ctx context.Context, q squirrel.SelectBuilder) ([]*model.ApplicationWithOffer, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build application query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.ApplicationWithOffer
	for rows.Next() {
		a, err := scanApplicationWithOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// FindByID は応募を募集の所有企業付きで取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.ApplicationWithOffer, error) {
	query, args, err := applicationSelect().Where(squirrel.Eq{"a.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build application query: %w", err)
	}
	a, err := scanApplicationWithOffer(r.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return a, nil
}

// FindByStudentAndOffer は(student_id, offer_id)で応募を検索する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByStudentAndOffer(ctx context.Context, studentID, offerID string) (*model.Application, error) {
	a := &model.Application{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, student_id, offer_id, status, applied_at, updated_at
		 FROM applications
		 WHERE student_id = $1 AND offer_id = $2`,
		studentID, offerID,
	).Scan(&a.ID, &a.StudentID, &a.OfferID, &status, &a.AppliedAt, &a.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application by student and offer: %w", err)
	}
	a.Status = model.ApplicationStatus(status)
	return a, nil
}

// List は絞り込み条件に一致する応募をapplied_at降順で返す。
func (r *PostgresApplicationRepo) List(ctx context.Context, filter model.ApplicationFilter) ([]*model.ApplicationWithOffer, error) {
	where := squirrel.Eq{}
	if filter.StudentID != nil {
		where["a.student_id"] = *filter.StudentID
	}
	if filter.OfferID != nil {
		where["a.offer_id"] = *filter.OfferID
	}
	if filter.CompanyID != nil {
		where["o.company_id"] = *filter.CompanyID
	}
	if filter.Status != nil {
		where["a.status"] = string(*filter.Status)
	}

	q := applicationSelect()
	if len(where) > 0 {
		q = q.Where(where)
	}
	return r.query(ctx, q.OrderBy("a.applied_at DESC", "a.id"))
}

// ListByStudentUserID はユーザーIDから学生を結合して応募一覧を返す。
// 呼び出し側は学生IDを知る必要がない。
func (r *PostgresApplicationRepo) ListByStudentUserID(ctx context.Context, userID string) ([]*model.ApplicationWithOffer, error) {
	q := applicationSelect().
		Join("students s ON s.id = a.student_id").
		Where(squirrel.Eq{"s.user_id": userID}).
		OrderBy("a.applied_at DESC", "a.id")
	return r.query(ctx, q)
}

// Create は応募を作成する。(student_id, offer_id)の一意制約違反はErrDuplicateを返す。
func (r *PostgresApplicationRepo) Create(ctx context.Context, a *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, student_id, offer_id, status, applied_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.StudentID, a.OfferID, string(a.Status), a.AppliedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// UpdateStatus は現在のステータスがexpectedの場合のみステータスを更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, expected, next model.ApplicationStatus, updatedAt time.Time) error {
	return compareAndSetStatus(ctx, r.db, id, expected, next, updatedAt)
}

// CompleteWithHistory はCOMPLETEDへの遷移と履歴レコードの作成を同一トランザクションで行う。
// 履歴の作成に失敗した場合はステータスの変更もロールバックされる。
func (r *PostgresApplicationRepo) CompleteWithHistory(ctx context.Context, id string, expected model.ApplicationStatus, record *model.HistoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := compareAndSetStatus(ctx, tx, id, expected, model.ApplicationStatusCompleted, record.CompletedAt); err != nil {
		return err
	}

	if err := insertHistory(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete は応募を削除する。
func (r *PostgresApplicationRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return expectAffected(result)
}

// compareAndSetStatus はWHERE status = expected 付きでステータスを更新する。
// 同時に遷移しようとした場合、後続の更新は0件となりErrStatusConflictを返す。
func compareAndSetStatus(ctx context.Context, db DBTX, id string, expected, next model.ApplicationStatus, updatedAt time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE applications SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
