// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。HTTPステータスへの変換に使用する。
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindValidation   ErrorKind = "validation"
	KindForbidden    ErrorKind = "forbidden"
	KindUnauthorized ErrorKind = "unauthorized"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー分類
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, offer, application, evaluation, profile, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsKind はerrがkindに分類されるAPIErrorかどうかを判定する。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail          = "DUPLICATE_EMAIL"
	ErrCodeStudentNotFound         = "STUDENT_NOT_FOUND"
	ErrCodeCompanyNotFound         = "COMPANY_NOT_FOUND"
	ErrCodeSupervisorNotFound      = "SUPERVISOR_NOT_FOUND"
	ErrCodeSchoolNotFound          = "SCHOOL_NOT_FOUND"
	ErrCodeOfferNotFound           = "OFFER_NOT_FOUND"
	ErrCodeOfferClosed             = "OFFER_CLOSED"
	ErrCodeInvalidDeadline         = "INVALID_DEADLINE"
	ErrCodeApplicationNotFound     = "APPLICATION_NOT_FOUND"
	ErrCodeDuplicateApplication    = "DUPLICATE_APPLICATION"
	ErrCodeIllegalTransition       = "ILLEGAL_TRANSITION"
	ErrCodeCompletedImmutable      = "COMPLETED_IMMUTABLE"
	ErrCodeInvalidStatus           = "INVALID_STATUS"
	ErrCodeEvaluationNotFound      = "EVALUATION_NOT_FOUND"
	ErrCodeDuplicateEvaluation     = "DUPLICATE_EVALUATION"
	ErrCodeApplicationNotCompleted = "APPLICATION_NOT_COMPLETED"
	ErrCodeCrossCompany            = "CROSS_COMPANY"
	ErrCodeInvalidScore            = "INVALID_SCORE"
	ErrCodeInvalidURL              = "INVALID_URL"
	ErrCodeSSRFBlocked             = "SSRF_BLOCKED"
	ErrCodeFeedNotDetected         = "FEED_NOT_DETECTED"
	ErrCodeFetchFailed             = "FETCH_FAILED"
	ErrCodeInvalidMonths           = "INVALID_MONTHS"
	ErrCodeStatusConflict          = "STATUS_CONFLICT"
	ErrCodeInvalidSetting          = "INVALID_SETTING"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(action string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を実行する権限がありません: %s", action),
		Category: "auth",
		Action:   "操作に必要なロールでログインしているか確認してください。",
	}
}

// NewInvalidRequestError は入力不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "profile",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewStudentNotFoundError は学生プロフィール未検出エラーを生成する。
func NewStudentNotFoundError(ref string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeStudentNotFound,
		Message:  fmt.Sprintf("学生が見つかりません: %s", ref),
		Category: "profile",
		Action:   "学生IDを確認してください。",
	}
}

// NewCompanyNotFoundError は企業プロフィール未検出エラーを生成する。
func NewCompanyNotFoundError(ref string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeCompanyNotFound,
		Message:  fmt.Sprintf("企業が見つかりません: %s", ref),
		Category: "profile",
		Action:   "企業IDを確認してください。",
	}
}

// NewSupervisorNotFoundError は指導担当者プロフィール未検出エラーを生成する。
func NewSupervisorNotFoundError(ref string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeSupervisorNotFound,
		Message:  fmt.Sprintf("指導担当者が見つかりません: %s", ref),
		Category: "profile",
		Action:   "指導担当者として登録されたアカウントでログインしてください。",
	}
}

// NewSchoolNotFoundError は学校プロフィール未検出エラーを生成する。
func NewSchoolNotFoundError(ref string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeSchoolNotFound,
		Message:  fmt.Sprintf("学校が見つかりません: %s", ref),
		Category: "profile",
		Action:   "学校IDを確認してください。",
	}
}

// NewOfferNotFoundError は募集未検出エラーを生成する。
func NewOfferNotFoundError(offerID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeOfferNotFound,
		Message:  fmt.Sprintf("指定された募集が見つかりません: %s", offerID),
		Category: "offer",
		Action:   "募集IDを確認してください。",
	}
}

// NewOfferClosedError は締め切り済み募集への応募エラーを生成する。
func NewOfferClosedError(offerID string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeOfferClosed,
		Message:  fmt.Sprintf("この募集は締め切られています: %s", offerID),
		Category: "offer",
		Action:   "受付中の募集を選択してください。",
	}
}

// NewInvalidDeadlineError は締切日時が不正な場合のエラーを生成する。
func NewInvalidDeadlineError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidDeadline,
		Message:  "締切日時は現在より後の日時を指定してください。",
		Category: "validation",
		Action:   "締切日時を確認してください。",
	}
}

// NewApplicationNotFoundError は応募未検出エラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", applicationID),
		Category: "application",
		Action:   "応募IDを確認してください。",
	}
}

// NewDuplicateApplicationError は同一募集への重複応募エラーを生成する。
func NewDuplicateApplicationError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateApplication,
		Message:  "この募集には既に応募しています。",
		Category: "application",
		Action:   "応募一覧から該当の応募を確認してください。",
	}
}

// NewIllegalTransitionError は許可されていないステータス遷移のエラーを生成する。
func NewIllegalTransitionError(from, to ApplicationStatus) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeIllegalTransition,
		Message:  fmt.Sprintf("ステータスを %s から %s に変更することはできません。", from, to),
		Category: "application",
		Action:   "COMPLETED へはACCEPTEDの応募からのみ変更できます。",
	}
}

// NewCompletedImmutableError は完了済み応募の変更エラーを生成する。
func NewCompletedImmutableError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeCompletedImmutable,
		Message:  "completed application cannot be modified",
		Category: "application",
		Action:   "完了済みの応募は変更・削除できません。",
	}
}

// NewInvalidStatusError は未知のステータス指定エラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには PENDING、ACCEPTED、REJECTED、COMPLETED のいずれかを指定してください。",
	}
}

// NewEvaluationNotFoundError は評価未検出エラーを生成する。
func NewEvaluationNotFoundError(evaluationID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeEvaluationNotFound,
		Message:  fmt.Sprintf("指定された評価が見つかりません: %s", evaluationID),
		Category: "evaluation",
		Action:   "評価IDを確認してください。",
	}
}

// NewDuplicateEvaluationError は評価の重複作成エラーを生成する。
func NewDuplicateEvaluationError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateEvaluation,
		Message:  "この応募には既に評価が登録されています。",
		Category: "evaluation",
		Action:   "既存の評価を更新してください。",
	}
}

// NewApplicationNotCompletedError は未完了応募への評価エラーを生成する。
func NewApplicationNotCompletedError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeApplicationNotCompleted,
		Message:  "only COMPLETED applications can be evaluated",
		Category: "evaluation",
		Action:   "応募が COMPLETED になってから評価してください。",
	}
}

// NewCrossCompanyError は他社の応募・評価へのアクセスエラーを生成する。
func NewCrossCompanyError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeCrossCompany,
		Message:  "他社の応募・評価にはアクセスできません。",
		Category: "evaluation",
		Action:   "自社の募集に対する応募のみ操作できます。",
	}
}

// NewInvalidScoreError はスコア範囲外エラーを生成する。
func NewInvalidScoreError(score int) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidScore,
		Message:  fmt.Sprintf("無効なスコアです: %d", score),
		Category: "validation",
		Action:   "スコアは0から100の整数で指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewFeedNotDetectedError は採用フィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLから採用情報のRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "profile",
		Action:   "フィードのURLを直接入力するか、採用ページのURLを確認してください。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "profile",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidMonthsError は集計期間の指定エラーを生成する。
func NewInvalidMonthsError(months int) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidMonths,
		Message:  fmt.Sprintf("無効な集計期間です: %d", months),
		Category: "validation",
		Action:   "monthsには1から24の整数を指定してください。",
	}
}

// NewStatusConflictError は並行するステータス変更と競合した場合のエラーを生成する。
func NewStatusConflictError(applicationID string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeStatusConflict,
		Message:  fmt.Sprintf("応募のステータスが他の操作によって変更されました: %s", applicationID),
		Category: "application",
		Action:   "最新の状態を取得してから再度お試しください。",
	}
}

// NewInvalidSettingError は設定キーまたは値が不正な場合のエラーを生成する。
func NewInvalidSettingError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidSetting,
		Message:  fmt.Sprintf("無効な設定です: %s", reason),
		Category: "validation",
		Action:   "設定キーと値を確認してください。",
	}
}
