package careers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// mockOfferRepo はUpsertImportedのみを(company_id, source_guid)単位で記録する。
type mockOfferRepo struct {
	repository.OfferRepository
	mu     sync.Mutex
	offers map[string]*model.Offer
}

func newMockOfferRepo() *mockOfferRepo {
	return &mockOfferRepo{offers: map[string]*model.Offer{}}
}

func (m *mockOfferRepo) UpsertImported(ctx context.Context, o *model.Offer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := o.CompanyID + "/" + *o.SourceGUID
	if _, ok := m.offers[key]; ok {
		return false, nil
	}
	m.offers[key] = o
	return true, nil
}

type identitySanitizer struct{}

func (identitySanitizer) SanitizeDescription(html string) string { return "clean:" + html }
func (identitySanitizer) SanitizeComment(raw string) string { return raw }

type fetchRecorder struct {
	mu       sync.Mutex
	ok, fail int
	imported int
}

func (r *fetchRecorder) RecordApplicationCreated() {}
func (r *fetchRecorder) RecordStatusTransition(to model.ApplicationStatus) {}
func (r *fetchRecorder) RecordEvaluationCreated() {}
func (r *fetchRecorder) RecordOffersExpired(count int64) {}
func (r *fetchRecorder) RecordOffersImported(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported += count
}
func (r *fetchRecorder) RecordCareersFetch(ok bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.ok++
	} else {
		r.fail++
	}
}
func (r *fetchRecorder) RecordHTTPStatus(statusCode int) {}

var importNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

const careersRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Acme Careers</title>
<item><title>Backend Intern</title><guid>job-1</guid><description>&lt;p&gt;Go&lt;/p&gt;</description><pubDate>Wed, 14 Oct 2026 09:00:00 GMT</pubDate></item>
<item><title>Data Intern</title><link>https://acme.example.com/jobs/2</link><pubDate>Tue, 13 Oct 2026 09:00:00 GMT</pubDate></item>
<item><title>Old Posting</title><guid>job-old</guid><pubDate>Mon, 01 Jun 2026 09:00:00 GMT</pubDate></item>
<item><title></title><guid>job-untitled</guid></item>
</channel></rss>`

func newTestImporter(repo repository.OfferRepository, rec *fetchRecorder, buf *bytes.Buffer) *Importer {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	im := NewImporter(repo, &openGuard{}, identitySanitizer{}, rec, logger, 5*time.Second, 1<<20, 30*24*time.Hour)
	im.now = func() time.Time { return importNow }
	return im
}

func TestImport_UpsertsOpenOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, careersRSS)
	}))
	defer srv.Close()

	repo := newMockOfferRepo()
	rec := &fetchRecorder{}
	var buf bytes.Buffer
	im := newTestImporter(repo, rec, &buf)

	res, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items != 4 || res.Created != 2 || res.Skipped != 2 {
		t.Errorf("result = %+v, want items=4 created=2 skipped=2", res)
	}

	o, ok := repo.offers["c-1/job-1"]
	if !ok {
		t.Fatal("job-1 was not imported")
	}
	if o.Status != model.OfferStatusOpen {
		t.Errorf("status = %s, want OPEN", o.Status)
	}
	wantDeadline := time.Date(2026, 11, 13, 9, 0, 0, 0, time.UTC)
	if !o.Deadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", o.Deadline, wantDeadline)
	}
	if o.Description != "clean:<p>Go</p>" {
		t.Errorf("description = %q, want sanitized", o.Description)
	}
	if _, ok := repo.offers["c-1/https://acme.example.com/jobs/2"]; !ok {
		t.Error("item without guid should fall back to link")
	}
	if rec.ok != 1 || rec.imported != 2 {
		t.Errorf("metrics ok=%d imported=%d, want 1 and 2", rec.ok, rec.imported)
	}
}

// 2回目の取り込みでは新規作成されないこと
func TestImport_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, careersRSS)
	}))
	defer srv.Close()

	repo := newMockOfferRepo()
	var buf bytes.Buffer
	im := newTestImporter(repo, &fetchRecorder{}, &buf)
	company := &model.Company{ID: "c-1", CareersFeedURL: srv.URL}

	if _, err := im.Import(context.Background(), company); err != nil {
		t.Fatalf("first import: %v", err)
	}
	res, err := im.Import(context.Background(), company)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("created = %d on second import, want 0", res.Created)
	}
	if len(repo.offers) != 2 {
		t.Errorf("offers = %d, want 2", len(repo.offers))
	}
}

func TestImport_HTTPErrorRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &fetchRecorder{}
	var buf bytes.Buffer
	im := newTestImporter(newMockOfferRepo(), rec, &buf)

	_, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if rec.fail != 1 {
		t.Errorf("failure metric = %d, want 1", rec.fail)
	}
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected HTTPStatusError 503, got %v", err)
	}
}

func TestImport_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not a feed")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	im := newTestImporter(newMockOfferRepo(), &fetchRecorder{}, &buf)

	if _, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: srv.URL}); err == nil {
		t.Fatal("expected parse error")
	}
}

// TestImport_OversizedFeedRejected は上限を超える本文を切り詰めずにエラーとすることを検証する。
func TestImport_OversizedFeedRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, careersRSS)
	}))
	defer srv.Close()

	repo := newMockOfferRepo()
	rec := &fetchRecorder{}
	var buf bytes.Buffer
	im := newTestImporter(repo, rec, &buf)
	im.maxBodySize = int64(len(careersRSS) / 2)

	_, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: srv.URL})
	if !errors.Is(err, ErrFeedTooLarge) {
		t.Fatalf("err = %v, want ErrFeedTooLarge", err)
	}
	if len(repo.offers) != 0 {
		t.Errorf("offers = %d, want 0", len(repo.offers))
	}
	if rec.fail != 1 {
		t.Errorf("failure metric = %d, want 1", rec.fail)
	}
}

// TestImport_FeedAtExactLimitAccepted は上限ちょうどの本文が取り込まれることを検証する。
func TestImport_FeedAtExactLimitAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, careersRSS)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	im := newTestImporter(newMockOfferRepo(), &fetchRecorder{}, &buf)
	im.maxBodySize = int64(len(careersRSS))

	if _, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: srv.URL}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
}

func TestImport_BlockedURL(t *testing.T) {
	var buf bytes.Buffer
	im := newTestImporter(newMockOfferRepo(), &fetchRecorder{}, &buf)
	im.guard = &openGuard{blocked: map[string]bool{"http://127.0.0.1/feed": true}}

	_, err := im.Import(context.Background(), &model.Company{ID: "c-1", CareersFeedURL: "http://127.0.0.1/feed"})
	if !model.IsKind(err, model.KindForbidden) {
		t.Errorf("expected Forbidden error, got %v", err)
	}
}
