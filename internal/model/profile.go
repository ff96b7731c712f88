package model

import "time"

// Student は学生プロフィールを表す。
type Student struct {
	ID        string
	UserID    string
	FirstName string
	LastName  string
	SchoolID  *string
	Program   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Company は企業プロフィールを表す。
// CareersFeedURLが設定されている場合、ワーカーが採用フィードから募集を取り込む。
type Company struct {
	ID             string
	UserID         string
	Name           string
	Sector         *string
	Website        string
	CareersFeedURL string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Supervisor は企業に所属する指導担当者プロフィールを表す。
type Supervisor struct {
	ID        string
	UserID    string
	CompanyID string
	FirstName string
	LastName  string
	Position  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// School は学校プロフィールを表す。
type School struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Setting はプラットフォーム全体のキーバリュー設定を表す。
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
