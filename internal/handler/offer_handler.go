package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/offer"
)

// OfferServiceInterface は募集ハンドラーが必要とするサービスインターフェース。
type OfferServiceInterface interface {
	Get(ctx context.Context, id string) (*model.Offer, error)
	List(ctx context.Context, filter model.OfferFilter) ([]*model.Offer, error)
	Create(ctx context.Context, actor model.Principal, in offer.Input) (*model.Offer, error)
	Modify(ctx context.Context, actor model.Principal, id string, in offer.Update) (*model.Offer, error)
	Close(ctx context.Context, actor model.Principal, id string) (*model.Offer, error)
	Delete(ctx context.Context, actor model.Principal, id string) error
}

// OfferHandler は募集カタログのHTTPハンドラー。
type OfferHandler struct {
	service OfferServiceInterface
}

// NewOfferHandler はOfferHandlerを生成する。
func NewOfferHandler(service OfferServiceInterface) *OfferHandler {
	return &OfferHandler{service: service}
}

type createOfferRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
}

type updateOfferRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      *string    `json:"status"`
}

// ListOffers は募集一覧を返す。締切を過ぎた募集は取得前にCLOSEDとなる。
// GET /api/offers?company_id=&status=
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	filter := model.OfferFilter{CompanyID: optionalQuery(r, "company_id")}
	if raw := optionalQuery(r, "status"); raw != nil {
		status, ok := parseOfferStatus(*raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(*raw))
			return
		}
		filter.Status = &status
	}

	offers, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(offers, toOfferResponse))
}

// GetOffer は募集詳細を返す。
// GET /api/offers/{id}
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(o))
}

// CreateOffer は募集を作成する。
// POST /api/offers
func (h *OfferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("タイトルは必須です"))
		return
	}

	o, err := h.service.Create(r.Context(), actor, offer.Input{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferResponse(o))
}

// UpdateOffer は募集を部分更新する。
// PATCH /api/offers/{id}
func (h *OfferHandler) UpdateOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateOfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := offer.Update{Title: req.Title, Description: req.Description, Deadline: req.Deadline}
	if req.Status != nil {
		status, ok := parseOfferStatus(*req.Status)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(*req.Status))
			return
		}
		in.Status = &status
	}

	o, err := h.service.Modify(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(o))
}

// CloseOffer は募集を手動で締め切る。
// POST /api/offers/{id}/close
func (h *OfferHandler) CloseOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	o, err := h.service.Close(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(o))
}

// DeleteOffer は募集を削除する。
// DELETE /api/offers/{id}
func (h *OfferHandler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOfferStatus(s string) (model.OfferStatus, bool) {
	switch st := model.OfferStatus(s); st {
	case model.OfferStatusOpen, model.OfferStatusClosed:
		return st, true
	default:
		return "", false
	}
}
