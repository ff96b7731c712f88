package careers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/placement/internal/metrics"
	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
	"github.com/hitoshi/placement/internal/security"
)

// maxTitleLength は取り込む募集タイトルの最大文字数。
const maxTitleLength = 200

// ErrFeedTooLarge はフィード本文が上限サイズを超えたことを表す。途中で切り詰めてパースはしない。
var ErrFeedTooLarge = errors.New("フィードが上限サイズを超えています")

// ImportResult は1社分の取り込み結果。
type ImportResult struct {
	Items    int
	Created  int
	Skipped  int
	Duration time.Duration
}

// Importer は採用フィードを取得し、各エントリを募集として登録する。
// エントリは(company_id, source_guid)で冪等に登録され、締切は公開日時+TTLとなる。
type Importer struct {
	offerRepo   repository.OfferRepository
	guard       security.URLGuard
	sanitizer   security.ContentSanitizer
	recorder    metrics.Recorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	ttl         time.Duration
	now         func() time.Time
}

// NewImporter はImporterの新しいインスタンスを生成する。recorderはnilでもよい。
func NewImporter(
	offerRepo repository.OfferRepository,
	guard security.URLGuard,
	sanitizer security.ContentSanitizer,
	recorder metrics.Recorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	ttl time.Duration,
) *Importer {
	return &Importer{
		offerRepo:   offerRepo,
		guard:       guard,
		sanitizer:   sanitizer,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Import は企業の採用フィードを取り込む。
func (im *Importer) Import(ctx context.Context, company *model.Company) (ImportResult, error) {
	start := time.Now()
	res, err := im.importFeed(ctx, company)
	res.Duration = time.Since(start)
	if im.recorder != nil {
		im.recorder.RecordCareersFetch(err == nil, res.Duration)
		if res.Created > 0 {
			im.recorder.RecordOffersImported(res.Created)
		}
	}
	if err != nil {
		return res, err
	}

	im.logger.Info("採用フィードの取り込みが完了しました",
		slog.String("company_id", company.ID),
		slog.String("feed_url", company.CareersFeedURL),
		slog.Int("items_total", res.Items),
		slog.Int("offers_created", res.Created),
		slog.Int("items_skipped", res.Skipped),
		slog.Float64("duration_ms", float64(res.Duration.Milliseconds())),
	)
	return res, nil
}

func (im *Importer) importFeed(ctx context.Context, company *model.Company) (ImportResult, error) {
	var res ImportResult

	if err := im.guard.Validate(company.CareersFeedURL); err != nil {
		return res, fmt.Errorf("採用フィードURLの検証に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, company.CareersFeedURL, nil)
	if err != nil {
		return res, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", feedAcceptHeader)

	resp, err := im.guard.Client(im.timeout).Do(req)
	if err != nil {
		return res, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return res, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize+1))
	if err != nil {
		return res, fmt.Errorf("レスポンスの読み込みに失敗: %w", err)
	}
	if int64(len(body)) > im.maxBodySize {
		return res, fmt.Errorf("%w: 上限 %d バイト", ErrFeedTooLarge, im.maxBodySize)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	now := im.now()
	res.Items = len(parsed.Items)
	for _, item := range parsed.Items {
		offer := im.toOffer(company.ID, item, now)
		if offer == nil {
			res.Skipped++
			continue
		}
		created, err := im.offerRepo.UpsertImported(ctx, offer)
		if err != nil {
			return res, fmt.Errorf("募集の登録に失敗: %w", err)
		}
		if created {
			res.Created++
		}
	}
	return res, nil
}

// toOffer はフィードのエントリを募集に変換する。
// GUIDとリンクのどちらもないエントリ、タイトルのないエントリ、
// 算出した締切が既に過ぎているエントリはnilを返す。
func (im *Importer) toOffer(companyID string, item *gofeed.Item, now time.Time) *model.Offer {
	if item == nil {
		return nil
	}
	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = strings.TrimSpace(item.Link)
	}
	title := strings.TrimSpace(item.Title)
	if guid == "" || title == "" {
		return nil
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}

	published := now
	switch {
	case item.PublishedParsed != nil:
		published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = *item.UpdatedParsed
	}
	deadline := published.Add(im.ttl).UTC()
	if !deadline.After(now) {
		return nil
	}

	description := item.Content
	if description == "" {
		description = item.Description
	}

	return &model.Offer{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		Title:       title,
		Description: im.sanitizer.SanitizeDescription(description),
		Deadline:    deadline,
		Status:      model.OfferStatusOpen,
		SourceGUID:  &guid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
