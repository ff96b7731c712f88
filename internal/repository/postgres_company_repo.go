package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した企業プロフィールリポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

const companyColumns = `id, user_id, name, sector, website, careers_feed_url, created_at, updated_at`

func scanCompany(row interface{ Scan(...interface{}) error }) (*model.Company, error) {
	c := &model.Company{}
	var sector sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &sector, &c.Website, &c.CareersFeedURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if sector.Valid {
		c.Sector = &sector.String
	}
	return c, nil
}

// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find company: %w", err)
	}
	return c, nil
}

// FindByUserID はユーザーIDから企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByUserID(ctx context.Context, userID string) (*model.Company, error) {
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE user_id = $1`, userID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find company by user ID: %w", err)
	}
	return c, nil
}

// List は企業一覧を名前順で返す。
func (r *PostgresCompanyRepo) List(ctx context.Context) ([]*model.Company, error) {
	return r.list(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
}

// ListWithCareersFeed は採用フィードURLが登録された企業を返す。
func (r *PostgresCompanyRepo) ListWithCareersFeed(ctx context.Context) ([]*model.Company, error) {
	return r.list(ctx, `SELECT `+companyColumns+` FROM companies WHERE careers_feed_url <> '' ORDER BY id`)
}

func (r *PostgresCompanyRepo) list(ctx context.Context, query string) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// Create は企業プロフィールを作成する。
func (r *PostgresCompanyRepo) Create(ctx context.Context, c *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, user_id, name, sector, website, careers_feed_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Name, c.Sector, c.Website, c.CareersFeedURL, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

// Update は企業プロフィールを更新する。
func (r *PostgresCompanyRepo) Update(ctx context.Context, c *model.Company) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE companies
		 SET name = $2, sector = $3, website = $4, careers_feed_url = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, c.Name, c.Sector, c.Website, c.CareersFeedURL, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	return expectAffected(result)
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
