// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールを表す。
type Role string

const (
	RoleSchoolAdmin Role = "school_admin"
	RoleCompany     Role = "company"
	RoleSupervisor  Role = "supervisor"
	RoleStudent     Role = "student"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleSchoolAdmin, RoleCompany, RoleSupervisor, RoleStudent:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// ロールごとのプロフィール（学生、企業、指導担当者、学校）とは1:1で紐付く。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal は認証済みリクエストの操作主体を表す。
// 全てのドメイン操作はPrincipalを受け取り、必要に応じてプロフィールIDへ解決する。
type Principal struct {
	UserID string
	Role   Role
}

// Is はPrincipalが指定ロールのいずれかを持つかどうかを返す。
func (p Principal) Is(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
