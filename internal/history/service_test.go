package history

import (
	"context"
	"testing"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
)

type mockHistoryRepo struct {
	lastFilter model.HistoryFilter
	records    []*model.HistoryRecord
}

func (m *mockHistoryRepo) Create(ctx context.Context, record *model.HistoryRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *mockHistoryRepo) FindAll(ctx context.Context, filter model.HistoryFilter) ([]*model.HistoryRecord, error) {
	m.lastFilter = filter
	return m.records, nil
}

type mockResolver struct {
	scopes map[string]directory.Scope
}

func (m *mockResolver) ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error) {
	return m.scopes[actor.UserID], nil
}

func newService() (*Service, *mockHistoryRepo) {
	repo := &mockHistoryRepo{}
	resolver := &mockResolver{scopes: map[string]directory.Scope{
		"u-student": {StudentID: "s-1"},
		"u-company": {CompanyID: "c-1"},
		"u-sv":      {CompanyID: "c-1", SupervisorID: "sv-1"},
	}}
	return NewService(repo, resolver), repo
}

func strPtr(s string) *string { return &s }

func TestFindAll_StudentFilterForced(t *testing.T) {
	svc, repo := newService()

	_, err := svc.FindAll(context.Background(),
		model.Principal{UserID: "u-student", Role: model.RoleStudent},
		model.HistoryFilter{StudentID: strPtr("s-other")},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastFilter.StudentID == nil || *repo.lastFilter.StudentID != "s-1" {
		t.Errorf("student_id filter = %v, want s-1", repo.lastFilter.StudentID)
	}
}

func TestFindAll_CompanyAndSupervisorFilterForced(t *testing.T) {
	for _, actor := range []model.Principal{
		{UserID: "u-company", Role: model.RoleCompany},
		{UserID: "u-sv", Role: model.RoleSupervisor},
	} {
		svc, repo := newService()
		status := model.ApplicationStatusCompleted

		_, err := svc.FindAll(context.Background(), actor, model.HistoryFilter{
			CompanyID: strPtr("c-other"),
			Status:    &status,
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", actor.Role, err)
		}
		if *repo.lastFilter.CompanyID != "c-1" {
			t.Errorf("%s: company_id filter = %s, want c-1", actor.Role, *repo.lastFilter.CompanyID)
		}
		if repo.lastFilter.Status == nil {
			t.Errorf("%s: status filter was dropped", actor.Role)
		}
	}
}

// 学校管理者の条件はそのまま渡され、未指定の項目はnilのままであること
func TestFindAll_AdminUnrestricted(t *testing.T) {
	svc, repo := newService()

	_, err := svc.FindAll(context.Background(),
		model.Principal{UserID: "u-admin", Role: model.RoleSchoolAdmin},
		model.HistoryFilter{OfferID: strPtr("o-1")},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := repo.lastFilter
	if f.StudentID != nil || f.CompanyID != nil || f.SupervisorID != nil || f.ApplicationID != nil || f.Status != nil {
		t.Errorf("unexpected filter: %+v", f)
	}
	if f.OfferID == nil || *f.OfferID != "o-1" {
		t.Errorf("offer_id filter = %v, want o-1", f.OfferID)
	}
}

func TestFindAll_UnknownRoleForbidden(t *testing.T) {
	svc, _ := newService()
	_, err := svc.FindAll(context.Background(), model.Principal{UserID: "u-x", Role: "guest"}, model.HistoryFilter{})
	if !model.IsKind(err, model.KindForbidden) {
		t.Errorf("expected Forbidden, got %v", err)
	}
}
