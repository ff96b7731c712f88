package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/evaluation"
	"github.com/hitoshi/placement/internal/model"
)

// EvaluationServiceInterface は評価ハンドラーが必要とするサービスインターフェース。
type EvaluationServiceInterface interface {
	Create(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error)
	List(ctx context.Context, actor model.Principal, applicationID *string) ([]*model.EvaluationWithScope, error)
	Get(ctx context.Context, actor model.Principal, id string) (*model.EvaluationWithScope, error)
	Update(ctx context.Context, actor model.Principal, id string, p evaluation.Patch) (*model.EvaluationWithScope, error)
	Remove(ctx context.Context, actor model.Principal, id string) error
}

// EvaluationHandler は評価のHTTPハンドラー。
type EvaluationHandler struct {
	service EvaluationServiceInterface
}

// NewEvaluationHandler はEvaluationHandlerを生成する。
func NewEvaluationHandler(service EvaluationServiceInterface) *EvaluationHandler {
	return &EvaluationHandler{service: service}
}

type createEvaluationRequest struct {
	ApplicationID string  `json:"application_id"`
	Score         *int    `json:"score"`
	Comment       *string `json:"comment"`
}

type updateEvaluationRequest struct {
	Score   *int    `json:"score"`
	Comment *string `json:"comment"`
}

// CreateEvaluation は完了済み応募に評価を登録する。
// POST /api/evaluations
func (h *EvaluationHandler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createEvaluationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ApplicationID == "" || req.Score == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("application_idとscoreは必須です"))
		return
	}
	if !model.ValidScore(*req.Score) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidScoreError(*req.Score))
		return
	}

	e, err := h.service.Create(r.Context(), actor, evaluation.Input{
		ApplicationID: req.ApplicationID,
		Score:         *req.Score,
		Comment:       req.Comment,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvaluationResponse(e))
}

// ListEvaluations はスコープ内の評価一覧を返す。
// GET /api/evaluations?application_id=
func (h *EvaluationHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	evals, err := h.service.List(r.Context(), actor, optionalQuery(r, "application_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(evals, toScopedEvaluationResponse))
}

// GetEvaluation は評価詳細を返す。
// GET /api/evaluations/{id}
func (h *EvaluationHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScopedEvaluationResponse(e))
}

// UpdateEvaluation はスコアとコメントを更新する。
// PATCH /api/evaluations/{id}
func (h *EvaluationHandler) UpdateEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateEvaluationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Score != nil && !model.ValidScore(*req.Score) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidScoreError(*req.Score))
		return
	}

	e, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), evaluation.Patch{
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScopedEvaluationResponse(e))
}

// DeleteEvaluation は評価を削除する。
// DELETE /api/evaluations/{id}
func (h *EvaluationHandler) DeleteEvaluation(w http.ResponseWriter, r *http.Request) {
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
