// Package offer は募集カタログのドメインロジックを提供する。
// 締切を過ぎた募集は読み取りのたびに遅延評価でCLOSEDに更新される。
package offer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
	"github.com/hitoshi/placement/internal/security"
)

// ScopeResolver は操作主体を企業ID等に解決するインターフェース。
type ScopeResolver interface {
	ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error)
}

// Input は募集作成の入力。
type Input struct {
	Title       string
	Description string
	Deadline    time.Time
}

// Update は募集の部分更新内容。nilの項目は変更しない。
type Update struct {
	Title       *string
	Description *string
	Deadline    *time.Time
	Status      *model.OfferStatus
}

// Service は募集カタログのサービス層。
type Service struct {
	offerRepo repository.OfferRepository
	resolver  ScopeResolver
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(offerRepo repository.OfferRepository, resolver ScopeResolver, sanitizer security.ContentSanitizer) *Service {
	return &Service{
		offerRepo: offerRepo,
		resolver:  resolver,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// SweepExpired は締切を過ぎたOPENの募集をCLOSEDにし、件数を返す。冪等。
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.offerRepo.CloseExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("期限切れ募集のクローズに失敗しました: %w", err)
	}
	if n > 0 {
		slog.Info("期限切れの募集をクローズしました", slog.Int64("count", n))
	}
	return n, nil
}

// Get は募集を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Offer, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

// List は絞り込み条件に一致する募集を締切の昇順で返す。
func (s *Service) List(ctx context.Context, filter model.OfferFilter) ([]*model.Offer, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	offers, err := s.offerRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("募集一覧の取得に失敗しました: %w", err)
	}
	return offers, nil
}

// Create は操作主体の企業の募集を作成する。締切は現在より後でなければならない。
func (s *Service) Create(ctx context.Context, actor model.Principal, in Input) (*model.Offer, error) {
	if err := policy.Authorize(actor, policy.ActionOfferCreate, policy.Resource{}); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("title is required")
	}
	now := s.now()
	if !in.Deadline.After(now) {
		return nil, model.NewInvalidDeadlineError()
	}

	scope, err := s.resolver.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	o := &model.Offer{
		ID:          uuid.New().String(),
		CompanyID:   scope.CompanyID,
		Title:       title,
		Description: s.sanitizer.SanitizeDescription(in.Description),
		Deadline:    in.Deadline.UTC(),
		Status:      model.OfferStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.offerRepo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("募集の作成に失敗しました: %w", err)
	}

	slog.Info("募集を作成しました",
		slog.String("offer_id", o.ID),
		slog.String("company_id", o.CompanyID),
	)
	return o, nil
}

// Modify は自社の募集を更新する。CLOSEDの募集をOPENに戻すことはできない。
func (s *Service) Modify(ctx context.Context, actor model.Principal, id string, in Update) (*model.Offer, error) {
	o, err := s.authorizedOffer(ctx, actor, id, policy.ActionOfferUpdate)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, model.NewInvalidRequestError("title is required")
		}
		o.Title = title
	}
	if in.Description != nil {
		o.Description = s.sanitizer.SanitizeDescription(*in.Description)
	}
	if in.Deadline != nil {
		if !in.Deadline.After(now) {
			return nil, model.NewInvalidDeadlineError()
		}
		o.Deadline = in.Deadline.UTC()
	}
	if in.Status != nil {
		switch *in.Status {
		case model.OfferStatusClosed:
			o.Status = model.OfferStatusClosed
		case model.OfferStatusOpen:
			if o.Status == model.OfferStatusClosed {
				return nil, model.NewOfferClosedError(o.ID)
			}
		default:
			return nil, model.NewInvalidStatusError(string(*in.Status))
		}
	}
	o.UpdatedAt = now

	if err := s.offerRepo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("募集の更新に失敗しました: %w", err)
	}
	return o, nil
}

// Close は自社の募集を手動でクローズする。既にCLOSEDの場合は何もしない。
func (s *Service) Close(ctx context.Context, actor model.Principal, id string) (*model.Offer, error) {
	closed := model.OfferStatusClosed
	return s.Modify(ctx, actor, id, Update{Status: &closed})
}

// Delete は募集を削除する。所有企業または学校管理者のみ。関連する応募もCASCADE削除される。
func (s *Service) Delete(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.authorizedOffer(ctx, actor, id, policy.ActionOfferDelete); err != nil {
		return err
	}
	if err := s.offerRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewOfferNotFoundError(id)
		}
		return fmt.Errorf("募集の削除に失敗しました: %w", err)
	}
	slog.Info("募集を削除しました", slog.String("offer_id", id), slog.String("user_id", actor.UserID))
	return nil
}

func (s *Service) authorizedOffer(ctx context.Context, actor model.Principal, id string, action policy.Action) (*model.Offer, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return nil, err
	}
	o, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	var scope directory.Scope
	if actor.Is(model.RoleCompany) {
		if scope, err = s.resolver.ResolveScope(ctx, actor); err != nil {
			return nil, err
		}
	}
	if err := policy.Authorize(actor, action, policy.Resource{
		OwnerCompanyID: o.CompanyID,
		ActorCompanyID: scope.CompanyID,
	}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Offer, error) {
	o, err := s.offerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("募集の取得に失敗しました: %w", err)
	}
	if o == nil {
		return nil, model.NewOfferNotFoundError(id)
	}
	return o, nil
}
