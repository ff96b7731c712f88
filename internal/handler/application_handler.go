package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/model"
)

// ApplicationServiceInterface は応募ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Create(ctx context.Context, actor model.Principal, offerID string) (*model.Application, error)
	TransitionStatus(ctx context.Context, actor model.Principal, id string, next model.ApplicationStatus) (*model.ApplicationWithOffer, error)
	List(ctx context.Context, actor model.Principal, filter model.ApplicationFilter) ([]*model.ApplicationWithOffer, error)
	Get(ctx context.Context, actor model.Principal, id string) (*model.ApplicationWithOffer, error)
	ListByStudentUserID(ctx context.Context, userID string) ([]*model.ApplicationWithOffer, error)
	Remove(ctx context.Context, actor model.Principal, id string) error
}

// ApplicationHandler は応募ライフサイクルのHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

type createApplicationRequest struct {
	OfferID string `json:"offer_id"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// CreateApplication は募集への応募を作成する。
// POST /api/applications
func (h *ApplicationHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OfferID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("offer_idは必須です"))
		return
	}

	app, err := h.service.Create(r.Context(), actor, req.OfferID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ListApplications は操作主体のスコープ内の応募一覧を返す。
// GET /api/applications?student_id=&offer_id=&status=
func (h *ApplicationHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	filter := model.ApplicationFilter{
		StudentID: optionalQuery(r, "student_id"),
		OfferID:   optionalQuery(r, "offer_id"),
	}
	if raw := optionalQuery(r, "status"); raw != nil {
		status, ok := model.ParseApplicationStatus(*raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(*raw))
			return
		}
		filter.Status = &status
	}

	apps, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(apps, toApplicationWithOfferResponse))
}

// ListMyApplications はログイン中の学生の応募一覧を返す。
// GET /api/applications/me
func (h *ApplicationHandler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	apps, err := h.service.ListByStudentUserID(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(apps, toApplicationWithOfferResponse))
}

// GetApplication は応募詳細を返す。
// GET /api/applications/{id}
func (h *ApplicationHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationWithOfferResponse(app))
}

// UpdateStatus は応募のステータスを変更する。
// PATCH /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, valid := model.ParseApplicationStatus(req.Status)
	if !valid {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(req.Status))
		return
	}

	app, err := h.service.TransitionStatus(r.Context(), actor, chi.URLParam(r, "id"), next)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationWithOfferResponse(app))
}

// DeleteApplication は応募を削除する。
// DELETE /api/applications/{id}
func (h *ApplicationHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
