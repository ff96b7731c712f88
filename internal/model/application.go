package model

import "time"

// OfferStatus は募集の受付状態を表す。
type OfferStatus string

const (
	OfferStatusOpen   OfferStatus = "OPEN"
	OfferStatusClosed OfferStatus = "CLOSED"
)

// Offer は企業が掲載するインターンシップ募集を表す。
// 締切を過ぎた募集は参照時にCLOSEDへ変更され、自動で再オープンされることはない。
type Offer struct {
	ID          string
	CompanyID   string
	Title       string
	Description string
	Deadline    time.Time
	Status      OfferStatus
	SourceGUID  *string // 採用フィードから取り込んだ場合のみ設定
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOpenAt は指定時刻に応募を受け付けているかどうかを返す。
func (o *Offer) IsOpenAt(now time.Time) bool {
	return o.Status == OfferStatusOpen && !o.Deadline.Before(now)
}

// ApplicationStatus は応募のステータスを表す。
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "PENDING"
	ApplicationStatusAccepted  ApplicationStatus = "ACCEPTED"
	ApplicationStatusRejected  ApplicationStatus = "REJECTED"
	ApplicationStatusCompleted ApplicationStatus = "COMPLETED"
)

// ParseApplicationStatus は文字列を応募ステータスに変換する。
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch st := ApplicationStatus(s); st {
	case ApplicationStatusPending, ApplicationStatusAccepted, ApplicationStatusRejected, ApplicationStatusCompleted:
		return st, true
	default:
		return "", false
	}
}

// allowedTransitions は応募ステータスの遷移表。COMPLETEDは終端状態。
var allowedTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationStatusPending:   {ApplicationStatusAccepted, ApplicationStatusRejected},
	ApplicationStatusAccepted:  {ApplicationStatusCompleted},
	ApplicationStatusRejected:  {},
	ApplicationStatusCompleted: {},
}

// ValidateTransition はfromからtoへの遷移が許可されているかを検証する。
// COMPLETEDからの遷移は全て完了済みエラー、それ以外の不正遷移は遷移エラーを返す。
func ValidateTransition(from, to ApplicationStatus) error {
	if from == ApplicationStatusCompleted {
		return NewCompletedImmutableError()
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return NewIllegalTransitionError(from, to)
}

// Application は学生の募集への応募を表す。
// (StudentID, OfferID) の組はDB制約で一意。
type Application struct {
	ID        string
	StudentID string
	OfferID   string
	Status    ApplicationStatus
	AppliedAt time.Time
	UpdatedAt time.Time
}

// ApplicationWithOffer は応募と募集の所有企業を結合したもの。
// 認可判定で応募→募集→企業を辿る際に使用する。
type ApplicationWithOffer struct {
	Application
	CompanyID  string
	OfferTitle string
}

// ApplicationFilter は応募一覧の絞り込み条件。nilの項目は条件に含めない。
type ApplicationFilter struct {
	StudentID *string
	OfferID   *string
	CompanyID *string
	Status    *ApplicationStatus
}

// OfferFilter は募集一覧の絞り込み条件。
type OfferFilter struct {
	CompanyID *string
	Status    *OfferStatus
}
