// Package directory は学生・企業・指導担当者・学校のプロフィール管理と、
// ユーザーIDからドメイン上のIDへの解決を提供する。
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
)

// FeedDiscoverer は企業サイトのURLから採用フィードのURLを検出するインターフェース。
type FeedDiscoverer interface {
	Discover(ctx context.Context, pageURL string) (string, error)
}

// Scope は操作主体をドメイン上のIDに解決した結果。該当しない項目は空文字。
type Scope struct {
	StudentID    string
	CompanyID    string
	SupervisorID string
}

// Service はプロフィールディレクトリのサービス層。
type Service struct {
	userRepo       repository.UserRepository
	studentRepo    repository.StudentRepository
	companyRepo    repository.CompanyRepository
	supervisorRepo repository.SupervisorRepository
	schoolRepo     repository.SchoolRepository
	discoverer     FeedDiscoverer
	now            func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// discovererがnilの場合、採用フィードURLは検出を行わずそのまま保存する。
func NewService(
	userRepo repository.UserRepository,
	studentRepo repository.StudentRepository,
	companyRepo repository.CompanyRepository,
	supervisorRepo repository.SupervisorRepository,
	schoolRepo repository.SchoolRepository,
	discoverer FeedDiscoverer,
) *Service {
	return &Service{
		userRepo:       userRepo,
		studentRepo:    studentRepo,
		companyRepo:    companyRepo,
		supervisorRepo: supervisorRepo,
		schoolRepo:     schoolRepo,
		discoverer:     discoverer,
		now:            time.Now,
	}
}

// --- 解決 ---

// StudentByUserID はユーザーIDから学生プロフィールを解決する。
func (s *Service) StudentByUserID(ctx context.Context, userID string) (*model.Student, error) {
	st, err := s.studentRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("学生プロフィールの取得に失敗しました: %w", err)
	}
	if st == nil {
		return nil, model.NewStudentNotFoundError(userID)
	}
	return st, nil
}

// CompanyByUserID はユーザーIDから企業プロフィールを解決する。
func (s *Service) CompanyByUserID(ctx context.Context, userID string) (*model.Company, error) {
	c, err := s.companyRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("企業プロフィールの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyNotFoundError(userID)
	}
	return c, nil
}

// SupervisorByUserID はユーザーIDから指導担当者プロフィールを解決する。
func (s *Service) SupervisorByUserID(ctx context.Context, userID string) (*model.Supervisor, error) {
	sv, err := s.supervisorRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("指導担当者プロフィールの取得に失敗しました: %w", err)
	}
	if sv == nil {
		return nil, model.NewSupervisorNotFoundError(userID)
	}
	return sv, nil
}

// ResolveScope は操作主体のロールに応じて学生ID・企業ID・指導担当者IDを解決する。
// 企業ユーザーのプロフィールが未作成の場合は自動作成する。
func (s *Service) ResolveScope(ctx context.Context, actor model.Principal) (Scope, error) {
	switch actor.Role {
	case model.RoleStudent:
		st, err := s.StudentByUserID(ctx, actor.UserID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{StudentID: st.ID}, nil
	case model.RoleCompany:
		c, err := s.CompanyForUser(ctx, actor.UserID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{CompanyID: c.ID}, nil
	case model.RoleSupervisor:
		sv, err := s.SupervisorByUserID(ctx, actor.UserID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{CompanyID: sv.CompanyID, SupervisorID: sv.ID}, nil
	}
	return Scope{}, nil
}

// --- 取得または作成 ---

// CompanyForUser は企業プロフィールを取得し、存在しない場合は空のプロフィールを作成する。
// NotFoundを握りつぶすのはこの関数とSchoolForUserのみ。
func (s *Service) CompanyForUser(ctx context.Context, userID string) (*model.Company, error) {
	c, err := s.companyRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("企業プロフィールの取得に失敗しました: %w", err)
	}
	if c != nil {
		return c, nil
	}

	name, err := s.displayName(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c = &model.Company{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.companyRepo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// 並行リクエストが先に作成した
			return s.CompanyByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("企業プロフィールの作成に失敗しました: %w", err)
	}
	slog.Info("企業プロフィールを自動作成しました",
		slog.String("user_id", userID),
		slog.String("company_id", c.ID),
	)
	return c, nil
}

// SchoolForUser は学校プロフィールを取得し、存在しない場合は空のプロフィールを作成する。
func (s *Service) SchoolForUser(ctx context.Context, userID string) (*model.School, error) {
	sc, err := s.schoolRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("学校プロフィールの取得に失敗しました: %w", err)
	}
	if sc != nil {
		return sc, nil
	}

	name, err := s.displayName(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sc = &model.School{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.schoolRepo.Create(ctx, sc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, findErr := s.schoolRepo.FindByUserID(ctx, userID)
			if findErr != nil {
				return nil, fmt.Errorf("学校プロフィールの取得に失敗しました: %w", findErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("学校プロフィールの作成に失敗しました: %w", err)
	}
	return sc, nil
}

func (s *Service) displayName(ctx context.Context, userID string) (string, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return "", model.NewUserNotFoundError()
	}
	return u.Name, nil
}

// --- 学生 ---

// StudentUpdate は学生プロフィールの部分更新内容。nilの項目は変更しない。
type StudentUpdate struct {
	FirstName *string
	LastName  *string
	SchoolID  *string
	Program   *string
}

// ListStudents は学生一覧を返す。
func (s *Service) ListStudents(ctx context.Context) ([]*model.Student, error) {
	students, err := s.studentRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("学生一覧の取得に失敗しました: %w", err)
	}
	return students, nil
}

// GetStudent は学生プロフィールを取得する。
func (s *Service) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	st, err := s.studentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("学生プロフィールの取得に失敗しました: %w", err)
	}
	if st == nil {
		return nil, model.NewStudentNotFoundError(id)
	}
	return st, nil
}

// UpdateStudent は学生プロフィールを更新する。本人または学校管理者のみ。
func (s *Service) UpdateStudent(ctx context.Context, actor model.Principal, id string, in StudentUpdate) (*model.Student, error) {
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionProfileUpdate, policy.Resource{OwnerUserID: st.UserID}); err != nil {
		return nil, err
	}
	if in.SchoolID != nil {
		school, err := s.schoolRepo.FindByID(ctx, *in.SchoolID)
		if err != nil {
			return nil, fmt.Errorf("学校の取得に失敗しました: %w", err)
		}
		if school == nil {
			return nil, model.NewSchoolNotFoundError(*in.SchoolID)
		}
		st.SchoolID = in.SchoolID
	}
	assign(&st.FirstName, in.FirstName)
	assign(&st.LastName, in.LastName)
	assign(&st.Program, in.Program)
	st.UpdatedAt = s.now()

	if err := s.studentRepo.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("学生プロフィールの更新に失敗しました: %w", err)
	}
	return st, nil
}

// --- 企業 ---

// CompanyUpdate は企業プロフィールの部分更新内容。
type CompanyUpdate struct {
	Name    *string
	Sector  *string
	Website *string
}

// ListCompanies は企業一覧を返す。
func (s *Service) ListCompanies(ctx context.Context) ([]*model.Company, error) {
	companies, err := s.companyRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("企業一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

// GetCompany は企業プロフィールを取得する。
func (s *Service) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := s.companyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("企業プロフィールの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCompanyNotFoundError(id)
	}
	return c, nil
}

// UpdateCompany は企業プロフィールを更新する。空文字の業種は未設定として保存する。
func (s *Service) UpdateCompany(ctx context.Context, actor model.Principal, id string, in CompanyUpdate) (*model.Company, error) {
	c, err := s.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionProfileUpdate, policy.Resource{OwnerUserID: c.UserID}); err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, model.NewInvalidRequestError("name must not be empty")
		}
		c.Name = *in.Name
	}
	if in.Sector != nil {
		sector := strings.TrimSpace(*in.Sector)
		if sector == "" {
			c.Sector = nil
		} else {
			c.Sector = &sector
		}
	}
	assign(&c.Website, in.Website)
	c.UpdatedAt = s.now()

	if err := s.companyRepo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("企業プロフィールの更新に失敗しました: %w", err)
	}
	return c, nil
}

// SetCareersFeed は企業の採用フィードURLを登録する。
// 企業サイトのURLが渡された場合はHTMLからフィードURLを検出する。空文字は登録解除。
func (s *Service) SetCareersFeed(ctx context.Context, actor model.Principal, rawURL string) (*model.Company, error) {
	if !actor.Is(model.RoleCompany) {
		return nil, model.NewForbiddenError("careers-feed:update")
	}
	c, err := s.CompanyForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	feedURL := strings.TrimSpace(rawURL)
	if feedURL != "" && s.discoverer != nil {
		feedURL, err = s.discoverer.Discover(ctx, feedURL)
		if err != nil {
			return nil, err
		}
	}

	c.CareersFeedURL = feedURL
	c.UpdatedAt = s.now()
	if err := s.companyRepo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("採用フィードURLの更新に失敗しました: %w", err)
	}

	slog.Info("採用フィードURLを更新しました",
		slog.String("company_id", c.ID),
		slog.String("feed_url", feedURL),
	)
	return c, nil
}

// --- 指導担当者 ---

// SupervisorInput は指導担当者アカウント作成の入力。
// CompanyIDは学校管理者が作成する場合のみ使用し、企業ユーザーの場合は自社に固定する。
type SupervisorInput struct {
	Email     string
	Name      string
	FirstName string
	LastName  string
	Position  string
	CompanyID string
}

// SupervisorUpdate は指導担当者プロフィールの部分更新内容。
type SupervisorUpdate struct {
	FirstName *string
	LastName  *string
	Position  *string
}

// CreateSupervisor は指導担当者のユーザーとプロフィールを同一トランザクションで作成する。
// メールアドレスが既に使われている場合はConflictを返す。
func (s *Service) CreateSupervisor(ctx context.Context, actor model.Principal, in SupervisorInput) (*model.Supervisor, error) {
	var companyID string
	if actor.Is(model.RoleCompany) {
		c, err := s.CompanyForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		companyID = c.ID
	} else if actor.Is(model.RoleSchoolAdmin) {
		c, err := s.GetCompany(ctx, in.CompanyID)
		if err != nil {
			return nil, err
		}
		companyID = c.ID
	}
	if err := policy.Authorize(actor, policy.ActionSupervisorCreate, policy.Resource{ActorCompanyID: companyID}); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidRequestError("email is invalid")
	}

	// 事前チェック（一意制約が最終的な判定）
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(email)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      in.Name,
		Role:      model.RoleSupervisor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sv := &model.Supervisor{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CompanyID: companyID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Position:  in.Position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.CreateSupervisorAccount(ctx, user, sv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError(email)
		}
		return nil, fmt.Errorf("指導担当者アカウントの作成に失敗しました: %w", err)
	}

	slog.Info("指導担当者アカウントを作成しました",
		slog.String("supervisor_id", sv.ID),
		slog.String("company_id", companyID),
	)
	return sv, nil
}

// ListSupervisors は指導担当者一覧を返す。companyIDがnilの場合は全件。
func (s *Service) ListSupervisors(ctx context.Context, companyID *string) ([]*model.Supervisor, error) {
	supervisors, err := s.supervisorRepo.List(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("指導担当者一覧の取得に失敗しました: %w", err)
	}
	return supervisors, nil
}

// GetSupervisor は指導担当者プロフィールを取得する。
func (s *Service) GetSupervisor(ctx context.Context, id string) (*model.Supervisor, error) {
	sv, err := s.supervisorRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("指導担当者プロフィールの取得に失敗しました: %w", err)
	}
	if sv == nil {
		return nil, model.NewSupervisorNotFoundError(id)
	}
	return sv, nil
}

// UpdateSupervisor は指導担当者プロフィールを更新する。
func (s *Service) UpdateSupervisor(ctx context.Context, actor model.Principal, id string, in SupervisorUpdate) (*model.Supervisor, error) {
	sv, err := s.GetSupervisor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionProfileUpdate, policy.Resource{OwnerUserID: sv.UserID}); err != nil {
		return nil, err
	}
	assign(&sv.FirstName, in.FirstName)
	assign(&sv.LastName, in.LastName)
	assign(&sv.Position, in.Position)
	sv.UpdatedAt = s.now()

	if err := s.supervisorRepo.Update(ctx, sv); err != nil {
		return nil, fmt.Errorf("指導担当者プロフィールの更新に失敗しました: %w", err)
	}
	return sv, nil
}

// --- 学校 ---

// ListSchools は学校一覧を返す。
func (s *Service) ListSchools(ctx context.Context) ([]*model.School, error) {
	schools, err := s.schoolRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("学校一覧の取得に失敗しました: %w", err)
	}
	return schools, nil
}

// GetSchool は学校プロフィールを取得する。
func (s *Service) GetSchool(ctx context.Context, id string) (*model.School, error) {
	sc, err := s.schoolRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("学校プロフィールの取得に失敗しました: %w", err)
	}
	if sc == nil {
		return nil, model.NewSchoolNotFoundError(id)
	}
	return sc, nil
}

// UpdateSchool は学校名を更新する。
func (s *Service) UpdateSchool(ctx context.Context, actor model.Principal, id, name string) (*model.School, error) {
	sc, err := s.GetSchool(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionProfileUpdate, policy.Resource{OwnerUserID: sc.UserID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, model.NewInvalidRequestError("name must not be empty")
	}
	sc.Name = name
	sc.UpdatedAt = s.now()

	if err := s.schoolRepo.Update(ctx, sc); err != nil {
		return nil, fmt.Errorf("学校プロフィールの更新に失敗しました: %w", err)
	}
	return sc, nil
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
