package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
)

// DirectoryServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type DirectoryServiceInterface interface {
	StudentByUserID(ctx context.Context, userID string) (*model.Student, error)
	SupervisorByUserID(ctx context.Context, userID string) (*model.Supervisor, error)
	CompanyForUser(ctx context.Context, userID string) (*model.Company, error)
	SchoolForUser(ctx context.Context, userID string) (*model.School, error)

	ListStudents(ctx context.Context) ([]*model.Student, error)
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	UpdateStudent(ctx context.Context, actor model.Principal, id string, in directory.StudentUpdate) (*model.Student, error)

	ListCompanies(ctx context.Context) ([]*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	UpdateCompany(ctx context.Context, actor model.Principal, id string, in directory.CompanyUpdate) (*model.Company, error)
	SetCareersFeed(ctx context.Context, actor model.Principal, rawURL string) (*model.Company, error)

	CreateSupervisor(ctx context.Context, actor model.Principal, in directory.SupervisorInput) (*model.Supervisor, error)
	ListSupervisors(ctx context.Context, companyID *string) ([]*model.Supervisor, error)
	GetSupervisor(ctx context.Context, id string) (*model.Supervisor, error)
	UpdateSupervisor(ctx context.Context, actor model.Principal, id string, in directory.SupervisorUpdate) (*model.Supervisor, error)

	ListSchools(ctx context.Context) ([]*model.School, error)
	GetSchool(ctx context.Context, id string) (*model.School, error)
	UpdateSchool(ctx context.Context, actor model.Principal, id, name string) (*model.School, error)
}

// DirectoryHandler は学生・企業・指導担当者・学校プロフィールのHTTPハンドラー。
type DirectoryHandler struct {
	service DirectoryServiceInterface
}

// NewDirectoryHandler はDirectoryHandlerを生成する。
func NewDirectoryHandler(service DirectoryServiceInterface) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

type updateStudentRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	SchoolID  *string `json:"school_id"`
	Program   *string `json:"program"`
}

type updateCompanyRequest struct {
	Name    *string `json:"name"`
	Sector  *string `json:"sector"`
	Website *string `json:"website"`
}

type careersFeedRequest struct {
	URL string `json:"url"`
}

type createSupervisorRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
	CompanyID string `json:"company_id"`
}

type updateSupervisorRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Position  *string `json:"position"`
}

type updateSchoolRequest struct {
	Name string `json:"name"`
}

// --- 学生 ---

// ListStudents は GET /api/students を処理する。
func (h *DirectoryHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(students, toStudentResponse))
}

// MyStudent はログイン中の学生のプロフィールを返す。
// GET /api/students/me
func (h *DirectoryHandler) MyStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := h.service.StudentByUserID(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// GetStudent は GET /api/students/{id} を処理する。
func (h *DirectoryHandler) GetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// UpdateStudent は PATCH /api/students/{id} を処理する。
func (h *DirectoryHandler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := h.service.UpdateStudent(r.Context(), actor, chi.URLParam(r, "id"), directory.StudentUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		SchoolID:  req.SchoolID,
		Program:   req.Program,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(st))
}

// --- 企業 ---

// ListCompanies は GET /api/companies を処理する。
func (h *DirectoryHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(companies, toCompanyResponse))
}

// MyCompany はログイン中の企業のプロフィールを返す。未作成の場合は空のプロフィールを作成する。
// GET /api/companies/me
func (h *DirectoryHandler) MyCompany(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	c, err := h.service.CompanyForUser(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// GetCompany は GET /api/companies/{id} を処理する。
func (h *DirectoryHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// UpdateCompany は PATCH /api/companies/{id} を処理する。
func (h *DirectoryHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateCompanyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.service.UpdateCompany(r.Context(), actor, chi.URLParam(r, "id"), directory.CompanyUpdate{
		Name:    req.Name,
		Sector:  req.Sector,
		Website: req.Website,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// SetCareersFeed は採用フィードURLを登録する。企業サイトのURLを指定した場合はフィードを自動検出する。
// PUT /api/companies/me/careers-feed
func (h *DirectoryHandler) SetCareersFeed(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req careersFeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	c, err := h.service.SetCareersFeed(r.Context(), actor, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(c))
}

// --- 指導担当者 ---

// ListSupervisors は GET /api/supervisors?company_id= を処理する。
func (h *DirectoryHandler) ListSupervisors(w http.ResponseWriter, r *http.Request) {
	supervisors, err := h.service.ListSupervisors(r.Context(), optionalQuery(r, "company_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(supervisors, toSupervisorResponse))
}

// CreateSupervisor は指導担当者のアカウントとプロフィールを作成する。
// POST /api/supervisors
func (h *DirectoryHandler) CreateSupervisor(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createSupervisorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("emailは必須です"))
		return
	}

	sv, err := h.service.CreateSupervisor(r.Context(), actor, directory.SupervisorInput{
		Email:     req.Email,
		Name:      req.Name,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Position:  req.Position,
		CompanyID: req.CompanyID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupervisorResponse(sv))
}

// MySupervisor は GET /api/supervisors/me を処理する。
func (h *DirectoryHandler) MySupervisor(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	sv, err := h.service.SupervisorByUserID(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupervisorResponse(sv))
}

// GetSupervisor は GET /api/supervisors/{id} を処理する。
func (h *DirectoryHandler) GetSupervisor(w http.ResponseWriter, r *http.Request) {
	sv, err := h.service.GetSupervisor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupervisorResponse(sv))
}

// UpdateSupervisor は PATCH /api/supervisors/{id} を処理する。
func (h *DirectoryHandler) UpdateSupervisor(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateSupervisorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sv, err := h.service.UpdateSupervisor(r.Context(), actor, chi.URLParam(r, "id"), directory.SupervisorUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Position:  req.Position,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupervisorResponse(sv))
}

// --- 学校 ---

// ListSchools は GET /api/schools を処理する。
func (h *DirectoryHandler) ListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.service.ListSchools(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(schools, toSchoolResponse))
}

// MySchool は GET /api/schools/me を処理する。未作成の場合は空のプロフィールを作成する。
func (h *DirectoryHandler) MySchool(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	s, err := h.service.SchoolForUser(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolResponse(s))
}

// GetSchool は GET /api/schools/{id} を処理する。
func (h *DirectoryHandler) GetSchool(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSchool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolResponse(s))
}

// UpdateSchool は PATCH /api/schools/{id} を処理する。
func (h *DirectoryHandler) UpdateSchool(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateSchoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("nameは必須です"))
		return
	}
	s, err := h.service.UpdateSchool(r.Context(), actor, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolResponse(s))
}
