package handler

import (
	"time"

	"github.com/hitoshi/placement/internal/model"
)

// offerResponse は募集のAPIレスポンス。
type offerResponse struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	Status      string    `json:"status"`
	Imported    bool      `json:"imported"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOfferResponse(o *model.Offer) offerResponse {
	return offerResponse{
		ID:          o.ID,
		CompanyID:   o.CompanyID,
		Title:       o.Title,
		Description: o.Description,
		Deadline:    o.Deadline,
		Status:      string(o.Status),
		Imported:    o.SourceGUID != nil,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// applicationResponse は応募のAPIレスポンス。
type applicationResponse struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	OfferID    string    `json:"offer_id"`
	OfferTitle string    `json:"offer_title,omitempty"`
	CompanyID  string    `json:"company_id,omitempty"`
	Status     string    `json:"status"`
	AppliedAt  time.Time `json:"applied_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toApplicationResponse(a *model.Application) applicationResponse {
	return applicationResponse{
		ID:        a.ID,
		StudentID: a.StudentID,
		OfferID:   a.OfferID,
		Status:    string(a.Status),
		AppliedAt: a.AppliedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toApplicationWithOfferResponse(a *model.ApplicationWithOffer) applicationResponse {
	resp := toApplicationResponse(&a.Application)
	resp.OfferTitle = a.OfferTitle
	resp.CompanyID = a.CompanyID
	return resp
}

// evaluationResponse は評価のAPIレスポンス。
type evaluationResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	SupervisorID  string    `json:"supervisor_id"`
	StudentID     string    `json:"student_id,omitempty"`
	OfferID       string    `json:"offer_id,omitempty"`
	CompanyID     string    `json:"company_id,omitempty"`
	Score         int       `json:"score"`
	Comment       *string   `json:"comment"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toEvaluationResponse(e *model.Evaluation) evaluationResponse {
	return evaluationResponse{
		ID:            e.ID,
		ApplicationID: e.ApplicationID,
		SupervisorID:  e.SupervisorID,
		Score:         e.Score,
		Comment:       e.Comment,
		EvaluatedAt:   e.EvaluatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toScopedEvaluationResponse(e *model.EvaluationWithScope) evaluationResponse {
	resp := toEvaluationResponse(&e.Evaluation)
	resp.StudentID = e.StudentID
	resp.OfferID = e.OfferID
	resp.CompanyID = e.CompanyID
	return resp
}

// historyResponse は履歴レコードのAPIレスポンス。
type historyResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	StudentID     string    `json:"student_id"`
	OfferID       string    `json:"offer_id"`
	CompanyID     string    `json:"company_id"`
	SupervisorID  string    `json:"supervisor_id"`
	Status        string    `json:"status"`
	AppliedAt     time.Time `json:"applied_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

func toHistoryResponse(h *model.HistoryRecord) historyResponse {
	return historyResponse{
		ID:            h.ID,
		ApplicationID: h.ApplicationID,
		StudentID:     h.StudentID,
		OfferID:       h.OfferID,
		CompanyID:     h.CompanyID,
		SupervisorID:  h.SupervisorID,
		Status:        string(h.Status),
		AppliedAt:     h.AppliedAt,
		CompletedAt:   h.CompletedAt,
	}
}

type studentResponse struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	SchoolID  *string `json:"school_id"`
	Program   string  `json:"program"`
}

func toStudentResponse(s *model.Student) studentResponse {
	return studentResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		SchoolID:  s.SchoolID,
		Program:   s.Program,
	}
}

type companyResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Sector         *string `json:"sector"`
	Website        string  `json:"website"`
	CareersFeedURL string  `json:"careers_feed_url"`
}

func toCompanyResponse(c *model.Company) companyResponse {
	return companyResponse{
		ID:             c.ID,
		UserID:         c.UserID,
		Name:           c.Name,
		Sector:         c.Sector,
		Website:        c.Website,
		CareersFeedURL: c.CareersFeedURL,
	}
}

type supervisorResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
}

func toSupervisorResponse(s *model.Supervisor) supervisorResponse {
	return supervisorResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		CompanyID: s.CompanyID,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Position:  s.Position,
	}
}

type schoolResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func toSchoolResponse(s *model.School) schoolResponse {
	return schoolResponse{ID: s.ID, UserID: s.UserID, Name: s.Name}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role)}
}

type settingResponse struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSettingResponse(s *model.Setting) settingResponse {
	return settingResponse{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt}
}

// mapSlice はスライスの各要素をレスポンス型に変換する。nilでも空配列を返す。
func mapSlice[T any, R any](items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	for i, it := range items {
		results[i] = fn(it)
	}
	return results
}
