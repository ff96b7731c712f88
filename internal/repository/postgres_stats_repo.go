package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/placement/internal/model"
)

// PostgresStatsRepo はPostgreSQLを使用した集計用リポジトリ。読み取り専用。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// Overview は学生数、企業数、募集数、ステータス別応募数、評価数と平均スコアを返す。
func (r *PostgresStatsRepo) Overview(ctx context.Context) (*model.Overview, error) {
	o := &model.Overview{ApplicationsByStatus: make(map[model.ApplicationStatus]int)}
	var avg sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT count(*) FROM students),
		   (SELECT count(*) FROM companies),
		   (SELECT count(*) FROM offers WHERE status = 'OPEN'),
		   (SELECT count(*) FROM offers WHERE status = 'CLOSED'),
		   (SELECT count(*) FROM evaluations),
		   (SELECT avg(score) FROM evaluations)`,
	).Scan(&o.Students, &o.Companies, &o.OpenOffers, &o.ClosedOffers, &o.Evaluations, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query overview: %w", err)
	}
	if avg.Valid {
		v := avg.Float64
		o.AverageScore = &v
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, count(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications by status: %w", err)
	}
	defer rows.Close()

	for _, st := range []model.ApplicationStatus{
		model.ApplicationStatusPending, model.ApplicationStatusAccepted,
		model.ApplicationStatusRejected, model.ApplicationStatusCompleted,
	} {
		o.ApplicationsByStatus[st] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		o.ApplicationsByStatus[model.ApplicationStatus(status)] = count
	}
	return o, rows.Err()
}

// CountApplicationsByMonth はfrom以降の応募数をUTCの "YYYY-MM" ごとに返す。
// 応募のない月はキーに含まれない。
func (r *PostgresStatsRepo) CountApplicationsByMonth(ctx context.Context, from time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(date_trunc('month', applied_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month, count(*)
		 FROM applications
		 WHERE applied_at >= $1
		 GROUP BY month`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications by month: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var month string
		var count int
		if err := rows.Scan(&month, &count); err != nil {
			return nil, fmt.Errorf("failed to scan month count: %w", err)
		}
		counts[month] = count
	}
	return counts, rows.Err()
}

// CountCompletedBySector はCOMPLETEDの応募を応募先企業の業種別に数える。
// 業種がNULLまたは空文字の企業は集計対象外。
func (r *PostgresStatsRepo) CountCompletedBySector(ctx context.Context) ([]SectorCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.sector, count(*)
		 FROM applications a
		 JOIN offers o ON o.id = a.offer_id
		 JOIN companies c ON c.id = o.company_id
		 WHERE a.status = 'COMPLETED' AND c.sector IS NOT NULL AND c.sector <> ''
		 GROUP BY c.sector
		 ORDER BY count(*) DESC, c.sector`)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed applications by sector: %w", err)
	}
	defer rows.Close()

	var counts []SectorCount
	for rows.Next() {
		var sc SectorCount
		if err := rows.Scan(&sc.Sector, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sector count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

// RecentActivity は応募と評価をUNION ALLで1つの時系列にまとめ、新しい順にlimit件返す。
func (r *PostgresStatsRepo) RecentActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, id, application_id, status, score, at FROM (
		   SELECT 'application' AS kind, a.id, a.id AS application_id, a.status, NULL::integer AS score, a.applied_at AS at
		   FROM applications a
		   UNION ALL
		   SELECT 'evaluation' AS kind, e.id, e.application_id, '' AS status, e.score, e.evaluated_at AS at
		   FROM evaluations e
		 ) activity
		 ORDER BY at DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var a model.Activity
		var kind string
		var score sql.NullInt64
		if err := rows.Scan(&kind, &a.ID, &a.ApplicationID, &a.Status, &score, &a.At); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Kind = model.ActivityKind(kind)
		if score.Valid {
			s := int(score.Int64)
			a.Score = &s
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
