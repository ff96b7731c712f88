package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
	createFn   func(ctx context.Context, user *model.User) error
	deleteFn   func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	repository.SessionRepository
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

var (
	admin   = model.Principal{UserID: "admin-1", Role: model.RoleSchoolAdmin}
	student = model.Principal{UserID: "user-1", Role: model.RoleStudent}
)

func errorKind(err error) model.ErrorKind {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// --- Provision ---

func TestProvision_CreatesCompanyUser(t *testing.T) {
	var saved *model.User
	svc := NewService(&mockUserRepo{
		createFn: func(_ context.Context, u *model.User) error {
			saved = u
			return nil
		},
	}, &mockSessionRepo{})

	u, err := svc.Provision(context.Background(), admin, ProvisionInput{
		Email: " HR@Acme.example ", Name: "Acme HR", Role: model.RoleCompany,
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if saved != u {
		t.Error("user should be persisted")
	}
	if u.Email != "hr@acme.example" {
		t.Errorf("Email = %q, want normalized", u.Email)
	}
	if u.Role != model.RoleCompany || u.ID == "" {
		t.Errorf("user = %+v", u)
	}
}

func TestProvision_Validation(t *testing.T) {
	tests := []struct {
		name     string
		actor    model.Principal
		in       ProvisionInput
		wantKind model.ErrorKind
	}{
		{"管理者以外は登録できない", student, ProvisionInput{Email: "a@b.c", Role: model.RoleCompany}, model.KindForbidden},
		{"学生ロールは事前登録できない", admin, ProvisionInput{Email: "a@b.c", Role: model.RoleStudent}, model.KindValidation},
		{"指導担当者ロールは事前登録できない", admin, ProvisionInput{Email: "a@b.c", Role: model.RoleSupervisor}, model.KindValidation},
		{"メールアドレスが不正", admin, ProvisionInput{Email: "not-an-email", Role: model.RoleSchoolAdmin}, model.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockUserRepo{
				createFn: func(_ context.Context, _ *model.User) error {
					t.Error("Create should not be called")
					return nil
				},
			}, &mockSessionRepo{})
			_, err := svc.Provision(context.Background(), tt.actor, tt.in)
			if got := errorKind(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q (err=%v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestProvision_DuplicateEmail(t *testing.T) {
	svc := NewService(&mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error { return repository.ErrDuplicate },
	}, &mockSessionRepo{})

	_, err := svc.Provision(context.Background(), admin, ProvisionInput{Email: "dup@example.com", Role: model.RoleSchoolAdmin})
	if errorKind(err) != model.KindConflict {
		t.Errorf("error = %v, want conflict", err)
	}
}

// --- Withdraw ---

func TestWithdraw_DeletesSessionsThenUser(t *testing.T) {
	var calls []string
	svc := NewService(&mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleStudent}, nil
		},
		deleteFn: func(_ context.Context, id string) error {
			calls = append(calls, "user:"+id)
			return nil
		},
	}, &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, userID string) error {
			calls = append(calls, "sessions:"+userID)
			return nil
		},
	})

	if err := svc.Withdraw(context.Background(), student, "user-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	want := []string{"sessions:user-1", "user:user-1"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestWithdraw_OtherUserIsForbidden(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{})

	err := svc.Withdraw(context.Background(), student, "user-2")
	if errorKind(err) != model.KindForbidden {
		t.Errorf("error = %v, want forbidden", err)
	}
}

func TestWithdraw_AdminCanRemoveAnyUser(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}, &mockSessionRepo{})

	if err := svc.Withdraw(context.Background(), admin, "user-2"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
}

func TestWithdraw_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{})

	err := svc.Withdraw(context.Background(), admin, "ghost")
	if errorKind(err) != model.KindNotFound {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestWithdraw_SessionDeleteError(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteFn: func(_ context.Context, _ string) error {
			t.Error("user should not be deleted when session deletion fails")
			return nil
		},
	}, &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, _ string) error { return errors.New("db error") },
	})

	if err := svc.Withdraw(context.Background(), student, "user-1"); err == nil {
		t.Fatal("expected error")
	}
}
