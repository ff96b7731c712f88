package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/placement/internal/evaluation"
	"github.com/hitoshi/placement/internal/model"
)

type mockEvaluationService struct {
	createFn func(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error)
	listFn   func(ctx context.Context, actor model.Principal, applicationID *string) ([]*model.EvaluationWithScope, error)
	getFn    func(ctx context.Context, actor model.Principal, id string) (*model.EvaluationWithScope, error)
	updateFn func(ctx context.Context, actor model.Principal, id string, p evaluation.Patch) (*model.EvaluationWithScope, error)
	removeFn func(ctx context.Context, actor model.Principal, id string) error
}

func (m *mockEvaluationService) Create(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return &model.Evaluation{ID: "e-new", ApplicationID: in.ApplicationID, Score: in.Score, Comment: in.Comment}, nil
}

func (m *mockEvaluationService) List(ctx context.Context, actor model.Principal, applicationID *string) ([]*model.EvaluationWithScope, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor, applicationID)
	}
	return nil, nil
}

func (m *mockEvaluationService) Get(ctx context.Context, actor model.Principal, id string) (*model.EvaluationWithScope, error) {
	if m.getFn != nil {
		return m.getFn(ctx, actor, id)
	}
	return &model.EvaluationWithScope{Evaluation: model.Evaluation{ID: id}}, nil
}

func (m *mockEvaluationService) Update(ctx context.Context, actor model.Principal, id string, p evaluation.Patch) (*model.EvaluationWithScope, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, p)
	}
	return &model.EvaluationWithScope{Evaluation: model.Evaluation{ID: id}}, nil
}

func (m *mockEvaluationService) Remove(ctx context.Context, actor model.Principal, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, actor, id)
	}
	return nil
}

func TestEvaluationHandler_Create_Success(t *testing.T) {
	var got evaluation.Input
	svc := &mockEvaluationService{
		createFn: func(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error) {
			got = in
			return &model.Evaluation{ID: "e-1", ApplicationID: in.ApplicationID, SupervisorID: "sv-1", Score: in.Score, Comment: in.Comment}, nil
		},
	}
	h := NewEvaluationHandler(svc)

	body := `{"application_id":"a-1","score":85,"comment":"よく頑張りました"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/evaluations", strings.NewReader(body)), "sv-user", model.RoleSupervisor)
	w := httptest.NewRecorder()

	h.CreateEvaluation(w, req)

	assertStatus(t, w, http.StatusCreated)
	if got.ApplicationID != "a-1" || got.Score != 85 {
		t.Errorf("input = %+v", got)
	}
	if got.Comment == nil || *got.Comment != "よく頑張りました" {
		t.Errorf("Comment = %v", got.Comment)
	}
	var resp evaluationResponse
	decodeBody(t, w, &resp)
	if resp.ID != "e-1" || resp.SupervisorID != "sv-1" || resp.Score != 85 {
		t.Errorf("response = %+v", resp)
	}
}

// スコア0は有効値として扱うこと
func TestEvaluationHandler_Create_ZeroScoreAccepted(t *testing.T) {
	h := NewEvaluationHandler(&mockEvaluationService{})

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/evaluations", strings.NewReader(`{"application_id":"a-1","score":0}`)), "sv-user", model.RoleSupervisor)
	w := httptest.NewRecorder()

	h.CreateEvaluation(w, req)

	assertStatus(t, w, http.StatusCreated)
}

func TestEvaluationHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"スコア上限超過", `{"application_id":"a-1","score":101}`, model.ErrCodeInvalidScore},
		{"負のスコア", `{"application_id":"a-1","score":-1}`, model.ErrCodeInvalidScore},
		{"スコアなし", `{"application_id":"a-1"}`, model.ErrCodeInvalidRequest},
		{"応募IDなし", `{"score":50}`, model.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockEvaluationService{
				createFn: func(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error) {
					called = true
					return nil, nil
				},
			}
			h := NewEvaluationHandler(svc)

			req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/evaluations", strings.NewReader(tt.body)), "sv-user", model.RoleSupervisor)
			w := httptest.NewRecorder()

			h.CreateEvaluation(w, req)

			assertStatus(t, w, http.StatusBadRequest)
			assertErrorCode(t, w, tt.wantCode)
			if called {
				t.Error("service must not be called")
			}
		})
	}
}

func TestEvaluationHandler_Create_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"未完了", model.NewApplicationNotCompletedError(), http.StatusBadRequest},
		{"重複評価", model.NewDuplicateEvaluationError(), http.StatusConflict},
		{"他社の応募", model.NewCrossCompanyError(), http.StatusForbidden},
		{"応募なし", model.NewApplicationNotFoundError("a-1"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockEvaluationService{
				createFn: func(ctx context.Context, actor model.Principal, in evaluation.Input) (*model.Evaluation, error) {
					return nil, tt.err
				},
			}
			h := NewEvaluationHandler(svc)

			req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/evaluations", strings.NewReader(`{"application_id":"a-1","score":70}`)), "sv-user", model.RoleSupervisor)
			w := httptest.NewRecorder()

			h.CreateEvaluation(w, req)

			assertStatus(t, w, tt.wantStatus)
		})
	}
}

func TestEvaluationHandler_List_PassesApplicationID(t *testing.T) {
	var got *string
	svc := &mockEvaluationService{
		listFn: func(ctx context.Context, actor model.Principal, applicationID *string) ([]*model.EvaluationWithScope, error) {
			got = applicationID
			return []*model.EvaluationWithScope{{
				Evaluation: model.Evaluation{ID: "e-1", Score: 90},
				CompanyID:  "c-1",
				StudentID:  "st-1",
			}}, nil
		},
	}
	h := NewEvaluationHandler(svc)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/api/evaluations?application_id=a-9", nil), "st-user", model.RoleStudent)
	w := httptest.NewRecorder()

	h.ListEvaluations(w, req)

	assertStatus(t, w, http.StatusOK)
	if got == nil || *got != "a-9" {
		t.Errorf("applicationID = %v, want a-9", got)
	}
	var body []evaluationResponse
	decodeBody(t, w, &body)
	if len(body) != 1 || body[0].CompanyID != "c-1" || body[0].StudentID != "st-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestEvaluationHandler_Get_NotFound(t *testing.T) {
	svc := &mockEvaluationService{
		getFn: func(ctx context.Context, actor model.Principal, id string) (*model.EvaluationWithScope, error) {
			return nil, model.NewEvaluationNotFoundError(id)
		},
	}
	h := NewEvaluationHandler(svc)

	req := withURLParams(withPrincipal(httptest.NewRequest(http.MethodGet, "/api/evaluations/e-x", nil), "u", model.RoleSchoolAdmin), "id", "e-x")
	w := httptest.NewRecorder()

	h.GetEvaluation(w, req)

	assertStatus(t, w, http.StatusNotFound)
	assertErrorCode(t, w, model.ErrCodeEvaluationNotFound)
}

func TestEvaluationHandler_Update_CommentOnly(t *testing.T) {
	var got evaluation.Patch
	svc := &mockEvaluationService{
		updateFn: func(ctx context.Context, actor model.Principal, id string, p evaluation.Patch) (*model.EvaluationWithScope, error) {
			got = p
			return &model.EvaluationWithScope{Evaluation: model.Evaluation{ID: id, Score: 60, Comment: p.Comment}}, nil
		},
	}
	h := NewEvaluationHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/evaluations/e-1", strings.NewReader(`{"comment":"追記"}`))
	req = withURLParams(withPrincipal(req, "sv-user", model.RoleSupervisor), "id", "e-1")
	w := httptest.NewRecorder()

	h.UpdateEvaluation(w, req)

	assertStatus(t, w, http.StatusOK)
	if got.Score != nil {
		t.Errorf("Score = %v, want nil", *got.Score)
	}
	if got.Comment == nil || *got.Comment != "追記" {
		t.Errorf("Comment = %v", got.Comment)
	}
}

func TestEvaluationHandler_Update_InvalidScore(t *testing.T) {
	h := NewEvaluationHandler(&mockEvaluationService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/evaluations/e-1", strings.NewReader(`{"score":150}`))
	req = withURLParams(withPrincipal(req, "sv-user", model.RoleSupervisor), "id", "e-1")
	w := httptest.NewRecorder()

	h.UpdateEvaluation(w, req)

	assertStatus(t, w, http.StatusBadRequest)
	assertErrorCode(t, w, model.ErrCodeInvalidScore)
}

func TestEvaluationHandler_Delete(t *testing.T) {
	removed := ""
	svc := &mockEvaluationService{
		removeFn: func(ctx context.Context, actor model.Principal, id string) error {
			removed = id
			return nil
		},
	}
	h := NewEvaluationHandler(svc)

	req := withURLParams(withPrincipal(httptest.NewRequest(http.MethodDelete, "/api/evaluations/e-1", nil), "admin", model.RoleSchoolAdmin), "id", "e-1")
	w := httptest.NewRecorder()

	h.DeleteEvaluation(w, req)

	assertStatus(t, w, http.StatusNoContent)
	if removed != "e-1" {
		t.Errorf("removed = %q, want e-1", removed)
	}
}
