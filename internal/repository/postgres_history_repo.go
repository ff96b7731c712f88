package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した履歴台帳リポジトリ。
// history_recordsは応募への外部キーを持たないため、応募が削除されても残る。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Create は履歴レコードを無条件に追加する。重複検知は行わない。
func (r *PostgresHistoryRepo) Create(ctx context.Context, record *model.HistoryRecord) error {
	return insertHistory(ctx, r.db, record)
}

// FindAll は疎な絞り込み条件に一致する履歴をcompleted_at降順で返す。
// nilの項目は条件から除外する。
func (r *PostgresHistoryRepo) FindAll(ctx context.Context, filter model.HistoryFilter) ([]*model.HistoryRecord, error) {
	where := squirrel.Eq{}
	for column, v := range map[string]*string{
		"student_id":     filter.StudentID,
		"company_id":     filter.CompanyID,
		"supervisor_id":  filter.SupervisorID,
		"application_id": filter.ApplicationID,
		"offer_id":       filter.OfferID,
	} {
		if v != nil {
			where[column] = *v
		}
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}

	q := psql.Select(
		"id", "application_id", "student_id", "offer_id", "company_id", "supervisor_id",
		"status", "applied_at", "completed_at",
	).From("history_records")
	if len(where) > 0 {
		q = q.Where(where)
	}
	query, args, err := q.OrderBy("completed_at DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}
	defer rows.Close()

	var records []*model.HistoryRecord
	for rows.Next() {
		h := &model.HistoryRecord{}
		var status string
		if err := rows.Scan(&h.ID, &h.ApplicationID, &h.StudentID, &h.OfferID, &h.CompanyID, &h.SupervisorID,
			&status, &h.AppliedAt, &h.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		h.Status = model.ApplicationStatus(status)
		records = append(records, h)
	}
	return records, rows.Err()
}

func insertHistory(ctx context.Context, db DBTX, h *model.HistoryRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO history_records
		 (id, application_id, student_id, offer_id, company_id, supervisor_id, status, applied_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.ApplicationID, h.StudentID, h.OfferID, h.CompanyID, h.SupervisorID,
		string(h.Status), h.AppliedAt, h.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
