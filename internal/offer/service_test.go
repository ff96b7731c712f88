package offer

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// --- モック ---

// memOfferRepo はCloseExpiredの挙動を再現するインメモリ実装。
type memOfferRepo struct {
	offers     map[string]*model.Offer
	sweepCalls int
	deleted    []string
	// beforeUpdate は更新直前に割り込む並行操作を再現する。
	beforeUpdate func()
}

func newMemOfferRepo(offers ...*model.Offer) *memOfferRepo {
	m := &memOfferRepo{offers: map[string]*model.Offer{}}
	for _, o := range offers {
		m.offers[o.ID] = o
	}
	return m
}

func (m *memOfferRepo) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}
func (m *memOfferRepo) List(ctx context.Context, filter model.OfferFilter) ([]*model.Offer, error) {
	var out []*model.Offer
	for _, o := range m.offers {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.CompanyID != nil && o.CompanyID != *filter.CompanyID {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
func (m *memOfferRepo) Create(ctx context.Context, o *model.Offer) error {
	m.offers[o.ID] = o
	return nil
}
func (m *memOfferRepo) Update(ctx context.Context, o *model.Offer) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	stored, ok := m.offers[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status == model.OfferStatusClosed {
		o.Status = model.OfferStatusClosed
	}
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}
func (m *memOfferRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.offers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.offers, id)
	m.deleted = append(m.deleted, id)
	return nil
}
func (m *memOfferRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	m.sweepCalls++
	var n int64
	for _, o := range m.offers {
		if o.Status == model.OfferStatusOpen && o.Deadline.Before(now) {
			o.Status = model.OfferStatusClosed
			n++
		}
	}
	return n, nil
}
func (m *memOfferRepo) UpsertImported(ctx context.Context, o *model.Offer) (bool, error) {
	return false, nil
}

type mockResolver struct {
	scopes map[string]directory.Scope // key: user id
}

func (m *mockResolver) ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error) {
	return m.scopes[actor.UserID], nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeDescription(s string) string { return "clean:" + s }
func (passthroughSanitizer) SanitizeComment(s string) string     { return s }

var (
	fixedNow     = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	ownerCompany = model.Principal{UserID: "u-c1", Role: model.RoleCompany}
	otherCompany = model.Principal{UserID: "u-c2", Role: model.RoleCompany}
	schoolAdmin  = model.Principal{UserID: "u-admin", Role: model.RoleSchoolAdmin}
	student      = model.Principal{UserID: "u-s", Role: model.RoleStudent}
)

func newService(repo *memOfferRepo) *Service {
	svc := NewService(repo, &mockResolver{scopes: map[string]directory.Scope{
		"u-c1": {CompanyID: "c-1"},
		"u-c2": {CompanyID: "c-2"},
	}}, passthroughSanitizer{})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func openOffer(id string, deadline time.Time) *model.Offer {
	return &model.Offer{ID: id, CompanyID: "c-1", Title: "Intern", Deadline: deadline, Status: model.OfferStatusOpen}
}

func assertKind(t *testing.T, err error, kind model.ErrorKind) {
	t.Helper()
	if !model.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// --- テスト ---

func TestCreate(t *testing.T) {
	repo := newMemOfferRepo()
	svc := newService(repo)

	o, err := svc.Create(context.Background(), ownerCompany, Input{
		Title:       "  Backend Intern ",
		Description: "<p>Go</p>",
		Deadline:    fixedNow.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.CompanyID != "c-1" || o.Status != model.OfferStatusOpen {
		t.Errorf("unexpected offer: %+v", o)
	}
	if o.Title != "Backend Intern" {
		t.Errorf("Title: got %q", o.Title)
	}
	if o.Description != "clean:<p>Go</p>" {
		t.Errorf("description must be sanitized: %q", o.Description)
	}
}

func TestCreate_PastDeadline(t *testing.T) {
	svc := newService(newMemOfferRepo())
	_, err := svc.Create(context.Background(), ownerCompany, Input{Title: "x", Deadline: fixedNow.Add(-time.Hour)})
	assertKind(t, err, model.KindValidation)
}

func TestCreate_StudentForbidden(t *testing.T) {
	svc := newService(newMemOfferRepo())
	_, err := svc.Create(context.Background(), student, Input{Title: "x", Deadline: fixedNow.Add(time.Hour)})
	assertKind(t, err, model.KindForbidden)
}

// 締切を過ぎた募集は取得時にCLOSEDとして返ること
func TestGet_LazyExpiry(t *testing.T) {
	repo := newMemOfferRepo(openOffer("o-1", fixedNow.Add(-time.Minute)))
	svc := newService(repo)

	o, err := svc.Get(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != model.OfferStatusClosed {
		t.Errorf("Status: got %s, want CLOSED", o.Status)
	}
	if repo.sweepCalls != 1 {
		t.Errorf("sweep calls: got %d, want 1", repo.sweepCalls)
	}
}

func TestList_LazyExpiryBeforeFilter(t *testing.T) {
	repo := newMemOfferRepo(
		openOffer("o-1", fixedNow.Add(-time.Minute)),
		openOffer("o-2", fixedNow.Add(time.Hour)),
	)
	open := model.OfferStatusOpen

	offers, err := newService(repo).List(context.Background(), model.OfferFilter{Status: &open})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 || offers[0].ID != "o-2" {
		t.Errorf("expected only o-2 to be open, got %+v", offers)
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := newService(newMemOfferRepo()).Get(context.Background(), "missing")
	assertKind(t, err, model.KindNotFound)
}

// 一度CLOSEDになった募集はOPENに戻せないこと
func TestModify_CannotReopen(t *testing.T) {
	closed := openOffer("o-1", fixedNow.Add(time.Hour))
	closed.Status = model.OfferStatusClosed
	svc := newService(newMemOfferRepo(closed))
	open := model.OfferStatusOpen

	_, err := svc.Modify(context.Background(), ownerCompany, "o-1", Update{Status: &open})
	assertKind(t, err, model.KindValidation)
}

// 締切を延長してもCLOSEDのまま維持されること
func TestModify_ExtendDeadlineKeepsClosed(t *testing.T) {
	closed := openOffer("o-1", fixedNow.Add(-time.Hour))
	svc := newService(newMemOfferRepo(closed))
	later := fixedNow.Add(48 * time.Hour)

	o, err := svc.Modify(context.Background(), ownerCompany, "o-1", Update{Deadline: &later})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != model.OfferStatusClosed {
		t.Errorf("Status: got %s, want CLOSED", o.Status)
	}
}

// 読み込み後に並行してクローズされた募集を、タイトル更新でOPENに戻さないこと
func TestModify_ConcurrentCloseNotReverted(t *testing.T) {
	repo := newMemOfferRepo(openOffer("o-1", fixedNow.Add(time.Hour)))
	repo.beforeUpdate = func() { repo.offers["o-1"].Status = model.OfferStatusClosed }
	svc := newService(repo)
	title := "Renamed"

	o, err := svc.Modify(context.Background(), ownerCompany, "o-1", Update{Title: &title})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != model.OfferStatusClosed {
		t.Errorf("returned Status: got %s, want CLOSED", o.Status)
	}
	if got := repo.offers["o-1"]; got.Status != model.OfferStatusClosed || got.Title != "Renamed" {
		t.Errorf("stored offer: got status=%s title=%q", got.Status, got.Title)
	}
}

func TestModify_OtherCompanyForbidden(t *testing.T) {
	svc := newService(newMemOfferRepo(openOffer("o-1", fixedNow.Add(time.Hour))))
	title := "hijack"
	_, err := svc.Modify(context.Background(), otherCompany, "o-1", Update{Title: &title})
	assertKind(t, err, model.KindForbidden)
}

func TestClose_Idempotent(t *testing.T) {
	repo := newMemOfferRepo(openOffer("o-1", fixedNow.Add(time.Hour)))
	svc := newService(repo)

	for i := 0; i < 2; i++ {
		o, err := svc.Close(context.Background(), ownerCompany, "o-1")
		if err != nil {
			t.Fatalf("close #%d: unexpected error: %v", i+1, err)
		}
		if o.Status != model.OfferStatusClosed {
			t.Errorf("close #%d: status %s", i+1, o.Status)
		}
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name  string
		actor model.Principal
		kind  model.ErrorKind
	}{
		{"所有企業", ownerCompany, ""},
		{"学校管理者", schoolAdmin, ""},
		{"他社", otherCompany, model.KindForbidden},
		{"学生", student, model.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemOfferRepo(openOffer("o-1", fixedNow.Add(time.Hour)))
			err := newService(repo).Delete(context.Background(), tt.actor, "o-1")
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(repo.deleted) != 1 {
					t.Error("offer not deleted")
				}
				return
			}
			assertKind(t, err, tt.kind)
		})
	}
}

func TestSweepExpired_ReturnsCount(t *testing.T) {
	repo := newMemOfferRepo(
		openOffer("o-1", fixedNow.Add(-time.Hour)),
		openOffer("o-2", fixedNow.Add(-time.Minute)),
		openOffer("o-3", fixedNow.Add(time.Hour)),
	)
	svc := newService(repo)

	n, err := svc.SweepExpired(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first sweep: got %d, %v", n, err)
	}
	n, err = svc.SweepExpired(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second sweep must be a no-op: got %d, %v", n, err)
	}
}
