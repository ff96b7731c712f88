package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresOfferRepo はPostgreSQLを使用した募集リポジトリ。
type PostgresOfferRepo struct {
	db *sql.DB
}

// NewPostgresOfferRepo はPostgresOfferRepoを生成する。
func NewPostgresOfferRepo(db *sql.DB) *PostgresOfferRepo {
	return &PostgresOfferRepo{db: db}
}

var offerColumns = []string{
	"id", "company_id", "title", "description", "deadline", "status", "source_guid", "created_at", "updated_at",
}

func scanOffer(row interface{ Scan(...interface{}) error }) (*model.Offer, error) {
	o := &model.Offer{}
	var status string
	var sourceGUID sql.NullString
	if err := row.Scan(&o.ID, &o.CompanyID, &o.Title, &o.Description, &o.Deadline, &status, &sourceGUID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = model.OfferStatus(status)
	if sourceGUID.Valid {
		o.SourceGUID = &sourceGUID.String
	}
	return o, nil
}

// FindByID は指定IDの募集を取得する。見つからない場合はnilを返す。
func (r *PostgresOfferRepo) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	query, args, err := psql.Select(offerColumns...).From("offers").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build offer query: %w", err)
	}
	o, err := scanOffer(r.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find offer: %w", err)
	}
	return o, nil
}

// List は絞り込み条件に一致する募集を締切の昇順で返す。
func (r *PostgresOfferRepo) List(ctx context.Context, filter model.OfferFilter) ([]*model.Offer, error) {
	where := squirrel.Eq{}
	if filter.CompanyID != nil {
		where["company_id"] = *filter.CompanyID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}

	q := psql.Select(offerColumns...).From("offers")
	if len(where) > 0 {
		q = q.Where(where)
	}
	query, args, err := q.OrderBy("deadline ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build offer query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// Create は募集を作成する。
func (r *PostgresOfferRepo) Create(ctx context.Context, o *model.Offer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offers (id, company_id, title, description, deadline, status, source_guid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.CompanyID, o.Title, o.Description, o.Deadline, string(o.Status), o.SourceGUID, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

// Update は募集を更新する。CLOSEDの行はステータスを書き戻さず、保存後のステータスをoに反映する。
func (r *PostgresOfferRepo) Update(ctx context.Context, o *model.Offer) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		`UPDATE offers
		 SET title = $2, description = $3, deadline = $4,
		     status = CASE WHEN status = 'CLOSED' THEN 'CLOSED' ELSE $5 END,
		     updated_at = $6
		 WHERE id = $1
		 RETURNING status`,
		o.ID, o.Title, o.Description, o.Deadline, string(o.Status), o.UpdatedAt,
	).Scan(&status)
	if isNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	o.Status = model.OfferStatus(status)
	return nil
}

// Delete は募集を削除する。関連する応募はCASCADE削除される。
func (r *PostgresOfferRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}
	return expectAffected(result)
}

// CloseExpired は締切を過ぎたOPENの募集を一括でCLOSEDに変更する。
// 冪等: 対象がない場合は0を返す。
func (r *PostgresOfferRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE offers SET status = 'CLOSED', updated_at = $1
		 WHERE status = 'OPEN' AND deadline < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired offers: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpsertImported は採用フィード由来の募集を(company_id, source_guid)で登録する。
// 既存の場合はタイトルと説明のみ更新し、締切とステータスは維持する。
func (r *PostgresOfferRepo) UpsertImported(ctx context.Context, o *model.Offer) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO offers (id, company_id, title, description, deadline, status, source_guid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (company_id, source_guid) DO UPDATE
		 SET title = EXCLUDED.title, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		o.ID, o.CompanyID, o.Title, o.Description, o.Deadline, string(o.Status), o.SourceGUID, o.CreatedAt, o.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert imported offer: %w", err)
	}
	return inserted, nil
}

// compile-time interface check
var _ OfferRepository = (*PostgresOfferRepo)(nil)
