// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/placement/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーのみを作成する。事前登録（企業・学校管理者）で使用する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateStudentAccount はユーザー、identity、空の学生プロフィールを同一トランザクションで作成する。
	CreateStudentAccount(ctx context.Context, user *model.User, identity *model.Identity, student *model.Student) error

	// CreateSupervisorAccount はユーザーと指導担当者プロフィールを同一トランザクションで作成する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	CreateSupervisorAccount(ctx context.Context, user *model.User, supervisor *model.Supervisor) error

	// Delete はユーザーを削除する。関連するidentity、セッション、プロフィールはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は事前登録済みユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// FindPrincipal はセッションIDからユーザーIDとロールを解決する。期限切れの場合はnilを返す。
	FindPrincipal(ctx context.Context, id string) (*model.Principal, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// StudentRepository は学生プロフィールの永続化インターフェース。
type StudentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Student, error)
	FindByUserID(ctx context.Context, userID string) (*model.Student, error)
	List(ctx context.Context) ([]*model.Student, error)
	Update(ctx context.Context, student *model.Student) error
}

// CompanyRepository は企業プロフィールの永続化インターフェース。
type CompanyRepository interface {
	FindByID(ctx context.Context, id string) (*model.Company, error)
	FindByUserID(ctx context.Context, userID string) (*model.Company, error)
	List(ctx context.Context) ([]*model.Company, error)
	// Create は企業プロフィールを作成する。同一ユーザーで既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, company *model.Company) error
	Update(ctx context.Context, company *model.Company) error
	// ListWithCareersFeed は採用フィードURLが登録された企業を返す。
	ListWithCareersFeed(ctx context.Context) ([]*model.Company, error)
}

// SupervisorRepository は指導担当者プロフィールの永続化インターフェース。
type SupervisorRepository interface {
	FindByID(ctx context.Context, id string) (*model.Supervisor, error)
	FindByUserID(ctx context.Context, userID string) (*model.Supervisor, error)
	// List は指導担当者一覧を返す。companyIDがnilの場合は全件。
	List(ctx context.Context, companyID *string) ([]*model.Supervisor, error)
	Update(ctx context.Context, supervisor *model.Supervisor) error
}

// SchoolRepository は学校プロフィールの永続化インターフェース。
type SchoolRepository interface {
	FindByID(ctx context.Context, id string) (*model.School, error)
	FindByUserID(ctx context.Context, userID string) (*model.School, error)
	List(ctx context.Context) ([]*model.School, error)
	Create(ctx context.Context, school *model.School) error
	Update(ctx context.Context, school *model.School) error
}

// OfferRepository は募集データの永続化インターフェース。
type OfferRepository interface {
	// FindByID は指定IDの募集を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Offer, error)
	// List は絞り込み条件に一致する募集を締切の昇順で返す。
	List(ctx context.Context, filter model.OfferFilter) ([]*model.Offer, error)
	Create(ctx context.Context, offer *model.Offer) error
	// Update はタイトル、説明、締切、ステータスを更新する。対象がない場合はErrNotFoundを返す。
	Update(ctx context.Context, offer *model.Offer) error
	// Delete は募集を削除する。関連する応募はCASCADE削除される。
	Delete(ctx context.Context, id string) error
	// CloseExpired は締切を過ぎたOPENの募集をCLOSEDに変更し、変更件数を返す。
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	// UpsertImported は採用フィード由来の募集を(company_id, source_guid)で冪等に登録する。
	// 新規作成した場合はtrueを返す。
	UpsertImported(ctx context.Context, offer *model.Offer) (bool, error)
}

// ApplicationRepository は応募データの永続化インターフェース。
type ApplicationRepository interface {
	// FindByID は応募を募集の所有企業付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ApplicationWithOffer, error)
	// FindByStudentAndOffer は(student_id, offer_id)で応募を検索する。見つからない場合はnilを返す。
	FindByStudentAndOffer(ctx context.Context, studentID, offerID string) (*model.Application, error)
	// List は絞り込み条件に一致する応募をapplied_at降順で返す。
	List(ctx context.Context, filter model.ApplicationFilter) ([]*model.ApplicationWithOffer, error)
	// ListByStudentUserID はユーザーIDから学生を結合して応募一覧を返す。
	ListByStudentUserID(ctx context.Context, userID string) ([]*model.ApplicationWithOffer, error)
	// Create は応募を作成する。(student_id, offer_id)が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, application *model.Application) error
	// UpdateStatus は現在のステータスがexpectedの場合のみステータスを更新する。
	// 一致しない場合はErrStatusConflictを返す。
	UpdateStatus(ctx context.Context, id string, expected, next model.ApplicationStatus, updatedAt time.Time) error
	// CompleteWithHistory はCOMPLETEDへの遷移と履歴レコードの作成を同一トランザクションで行う。
	CompleteWithHistory(ctx context.Context, id string, expected model.ApplicationStatus, record *model.HistoryRecord) error
	// Delete は応募を削除する。対象がない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// EvaluationRepository は評価データの永続化インターフェース。
type EvaluationRepository interface {
	// FindByID は評価を応募先企業付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.EvaluationWithScope, error)
	// FindByApplicationID は応募IDで評価を検索する。見つからない場合はnilを返す。
	FindByApplicationID(ctx context.Context, applicationID string) (*model.Evaluation, error)
	// List はスコープ条件に一致する評価をevaluated_at降順で返す。
	List(ctx context.Context, filter model.EvaluationFilter) ([]*model.EvaluationWithScope, error)
	// Create は評価を作成する。application_idが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, evaluation *model.Evaluation) error
	Update(ctx context.Context, evaluation *model.Evaluation) error
	Delete(ctx context.Context, id string) error
}

// HistoryRepository は履歴台帳の永続化インターフェース。更新・削除は提供しない。
type HistoryRepository interface {
	// Create は履歴レコードを無条件に追加する。
	Create(ctx context.Context, record *model.HistoryRecord) error
	// FindAll は疎な絞り込み条件に一致する履歴をcompleted_at降順で返す。
	FindAll(ctx context.Context, filter model.HistoryFilter) ([]*model.HistoryRecord, error)
}

// SectorCount は業種ごとの完了応募数。
type SectorCount struct {
	Sector string
	Count  int
}

// StatsRepository は集計用の読み取り専用インターフェース。
type StatsRepository interface {
	Overview(ctx context.Context) (*model.Overview, error)
	// CountApplicationsByMonth はfrom以降の応募数を "YYYY-MM" ごとに返す。
	CountApplicationsByMonth(ctx context.Context, from time.Time) (map[string]int, error)
	// CountCompletedBySector はCOMPLETEDの応募を業種別に数える。業種未設定は含めない。
	CountCompletedBySector(ctx context.Context) ([]SectorCount, error)
	// RecentActivity は応募と評価を1つの時系列として新しい順にlimit件返す。
	RecentActivity(ctx context.Context, limit int) ([]model.Activity, error)
}

// SettingRepository はプラットフォーム設定の永続化インターフェース。
type SettingRepository interface {
	List(ctx context.Context) ([]*model.Setting, error)
	Upsert(ctx context.Context, setting *model.Setting) error
}

// DBTX は*sql.DBと*sql.Txの共通部分。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
