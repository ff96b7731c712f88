package model

import "time"

const (
	// MinScore は評価スコアの下限。
	MinScore = 0
	// MaxScore は評価スコアの上限。
	MaxScore = 100
)

// ValidScore はスコアが0から100の範囲内かどうかを返す。
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// Evaluation は完了済み応募に対する指導担当者の評価を表す。
// ApplicationIDはDB制約で一意。
type Evaluation struct {
	ID            string
	ApplicationID string
	SupervisorID  string
	Score         int
	Comment       *string
	EvaluatedAt   time.Time
	UpdatedAt     time.Time
}

// EvaluationWithScope は評価と応募先企業を結合したもの。
type EvaluationWithScope struct {
	Evaluation
	StudentID string
	OfferID   string
	CompanyID string
}

// EvaluationFilter は評価一覧のスコープ条件。nilの項目は条件に含めない。
type EvaluationFilter struct {
	CompanyID     *string
	StudentID     *string
	ApplicationID *string
}

// HistoryRecord は応募がCOMPLETEDへ遷移した時点で1件だけ作成される監査記録。
// 作成後に更新・削除されることはない。
type HistoryRecord struct {
	ID            string
	ApplicationID string
	StudentID     string
	OfferID       string
	CompanyID     string
	SupervisorID  string
	Status        ApplicationStatus
	AppliedAt     time.Time
	CompletedAt   time.Time
}

// HistoryFilter は履歴検索の疎な絞り込み条件。nilの項目は条件に含めない。
type HistoryFilter struct {
	StudentID     *string
	CompanyID     *string
	SupervisorID  *string
	ApplicationID *string
	OfferID       *string
	Status        *ApplicationStatus
}
