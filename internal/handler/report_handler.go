package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/model"
)

// HistoryServiceInterface は履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	FindAll(ctx context.Context, actor model.Principal, filter model.HistoryFilter) ([]*model.HistoryRecord, error)
}

// StatsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	Overview(ctx context.Context, actor model.Principal) (*model.Overview, error)
	ApplicationsByMonth(ctx context.Context, actor model.Principal, months int) ([]model.MonthBucket, error)
	SectorDistribution(ctx context.Context, actor model.Principal) ([]model.SectorShare, error)
	RecentActivity(ctx context.Context, actor model.Principal, limit int) ([]model.Activity, error)
}

// SettingServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingServiceInterface interface {
	List(ctx context.Context) ([]*model.Setting, error)
	Put(ctx context.Context, actor model.Principal, key, value string) (*model.Setting, error)
}

// defaultMonths は月別集計でmonthsが省略された場合の月数。
const defaultMonths = 6

// ReportHandler は履歴・集計・設定の読み取り中心のHTTPハンドラー。
type ReportHandler struct {
	history  HistoryServiceInterface
	stats    StatsServiceInterface
	settings SettingServiceInterface
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(history HistoryServiceInterface, stats StatsServiceInterface, settings SettingServiceInterface) *ReportHandler {
	return &ReportHandler{history: history, stats: stats, settings: settings}
}

type overviewResponse struct {
	Students             int            `json:"students"`
	Companies            int            `json:"companies"`
	OpenOffers           int            `json:"open_offers"`
	ClosedOffers         int            `json:"closed_offers"`
	ApplicationsByStatus map[string]int `json:"applications_by_status"`
	Evaluations          int            `json:"evaluations"`
	AverageScore         *float64       `json:"average_score"`
}

type monthBucketResponse struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type sectorShareResponse struct {
	Sector     string `json:"sector"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type activityResponse struct {
	Kind          string    `json:"kind"`
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Status        string    `json:"status,omitempty"`
	Score         *int      `json:"score,omitempty"`
	At            time.Time `json:"at"`
}

type putSettingRequest struct {
	Value string `json:"value"`
}

// ListHistories は完了記録を検索する。指定のない条件は絞り込みに使わない。
// GET /api/histories?student_id=&company_id=&supervisor_id=&application_id=&offer_id=&status=
func (h *ReportHandler) ListHistories(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	filter := model.HistoryFilter{
		StudentID:     optionalQuery(r, "student_id"),
		CompanyID:     optionalQuery(r, "company_id"),
		SupervisorID:  optionalQuery(r, "supervisor_id"),
		ApplicationID: optionalQuery(r, "application_id"),
		OfferID:       optionalQuery(r, "offer_id"),
	}
	if raw := optionalQuery(r, "status"); raw != nil {
		status, ok := model.ParseApplicationStatus(*raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStatusError(*raw))
			return
		}
		filter.Status = &status
	}

	records, err := h.history.FindAll(r.Context(), actor, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(records, toHistoryResponse))
}

// Overview は全体の件数を返す。
// GET /api/admin/stats/overview
func (h *ReportHandler) Overview(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	o, err := h.stats.Overview(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	byStatus := make(map[string]int, len(o.ApplicationsByStatus))
	for st, n := range o.ApplicationsByStatus {
		byStatus[string(st)] = n
	}
	writeJSON(w, http.StatusOK, overviewResponse{
		Students:             o.Students,
		Companies:            o.Companies,
		OpenOffers:           o.OpenOffers,
		ClosedOffers:         o.ClosedOffers,
		ApplicationsByStatus: byStatus,
		Evaluations:          o.Evaluations,
		AverageScore:         o.AverageScore,
	})
}

// ApplicationsByMonth は月別の応募数を返す。
// GET /api/admin/stats/applications-by-month?months=6
func (h *ReportHandler) ApplicationsByMonth(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	months, ok := intQuery(w, r, "months", defaultMonths)
	if !ok {
		return
	}

	buckets, err := h.stats.ApplicationsByMonth(r.Context(), actor, months)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(buckets, func(b model.MonthBucket) monthBucketResponse {
		return monthBucketResponse{Month: b.Label, Count: b.Count}
	}))
}

// SectorDistribution は業種別の完了応募の割合を返す。
// GET /api/admin/stats/sectors
func (h *ReportHandler) SectorDistribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	shares, err := h.stats.SectorDistribution(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(shares, func(s model.SectorShare) sectorShareResponse {
		return sectorShareResponse{Sector: s.Sector, Count: s.Count, Percentage: s.Percentage}
	}))
}

// RecentActivity は最近の応募と評価を新しい順に返す。
// GET /api/admin/stats/recent-activity?limit=10
func (h *ReportHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}

	activities, err := h.stats.RecentActivity(r.Context(), actor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(activities, func(a model.Activity) activityResponse {
		return activityResponse{
			Kind:          string(a.Kind),
			ID:            a.ID,
			ApplicationID: a.ApplicationID,
			Status:        a.Status,
			Score:         a.Score,
			At:            a.At,
		}
	}))
}

// ListSettings は全設定を返す。
// GET /api/settings
func (h *ReportHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(settings, toSettingResponse))
}

// PutSetting は設定を登録または更新する。
// PUT /api/settings/{key}
func (h *ReportHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req putSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := h.settings.Put(r.Context(), actor, chi.URLParam(r, "key"), req.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingResponse(st))
}

// intQuery は整数のクエリパラメータを読み取る。未指定の場合はdefを返す。
func intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(key+"は整数で指定してください"))
		return 0, false
	}
	return n, true
}
