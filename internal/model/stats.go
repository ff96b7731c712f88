package model

import "time"

// Overview はダッシュボード用の全体集計を表す。
type Overview struct {
	Students             int
	Companies            int
	OpenOffers           int
	ClosedOffers         int
	ApplicationsByStatus map[ApplicationStatus]int
	Evaluations          int
	AverageScore         *float64
}

// MonthBucket は月別の件数を表す。Labelは "YYYY-MM" 形式。
type MonthBucket struct {
	Label string
	Count int
}

// SectorShare は業種別の完了応募数と割合を表す。
type SectorShare struct {
	Sector     string
	Count      int
	Percentage int
}

// ActivityKind は最近のアクティビティの種類。
type ActivityKind string

const (
	ActivityApplication ActivityKind = "application"
	ActivityEvaluation  ActivityKind = "evaluation"
)

// Activity は最近のアクティビティ1件を表す。
type Activity struct {
	Kind          ActivityKind
	ID            string
	ApplicationID string
	Status        string
	Score         *int
	At            time.Time
}
