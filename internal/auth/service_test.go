package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const testSecret = "service-test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestRepo(t), testSecret, 15)
}

func register(t *testing.T, svc *Service, username string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "User " + username,
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", username, err)
	}
	return u
}

func TestService_Register(t *testing.T) {
	svc := newTestService(t)
	u := register(t, svc, "alice")

	if !u.IsActive {
		t.Error("new user should be active")
	}
	if u.PasswordHash == "" || u.PasswordHash == "password123" {
		t.Error("password should be stored hashed")
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "alice")

	valid := RegisterRequest{Name: "Bob", Username: "bob", Email: "bob@example.com", Password: "password123"}

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		want   error
	}{
		{"empty name", func(r *RegisterRequest) { r.Name = "  " }, ErrInvalid},
		{"long name", func(r *RegisterRequest) { r.Name = strings.Repeat("n", maxNameLength+1) }, ErrInvalid},
		{"bad username", func(r *RegisterRequest) { r.Username = "bob smith" }, ErrInvalid},
		{"bad email", func(r *RegisterRequest) { r.Email = "not-an-email" }, ErrInvalid},
		{"display name email", func(r *RegisterRequest) { r.Email = "Bob <bob@example.com>" }, ErrInvalid},
		{"short password", func(r *RegisterRequest) { r.Password = "short" }, ErrInvalid},
		{"username taken", func(r *RegisterRequest) { r.Username = "alice" }, ErrUsernameExists},
		{"email taken", func(r *RegisterRequest) { r.Email = "alice@example.com" }, ErrEmailExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if _, err := svc.Register(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_LoginAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice")

	tok, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("Login() = %+v", tok)
	}

	me, err := svc.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if me.ID != alice.ID {
		t.Errorf("Authenticate() id = %q, want %q", me.ID, alice.ID)
	}
}

func TestService_LoginFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	bob := register(t, svc, "bob")
	register(t, svc, "alice")
	if err := svc.Deactivate(ctx, bob.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"unknown user", "nobody", "password123", ErrInvalidCredentials},
		{"wrong password", "alice", "wrong-password", ErrInvalidCredentials},
		{"inactive", "bob", "password123", ErrUserInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Login(ctx, tt.username, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("Login() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_AuthenticateRejects(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice")

	tok, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	t.Run("garbage", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Authenticate() error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewService(svc.users, "another-secret", 15)
		if _, err := other.Authenticate(ctx, tok.AccessToken); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Authenticate() error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("renamed subject", func(t *testing.T) {
		name := "alice-renamed"
		if _, err := svc.Update(ctx, alice.ID, UserPatch{Username: &name}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if _, err := svc.Authenticate(ctx, tok.AccessToken); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Authenticate() error = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("deactivated after login", func(t *testing.T) {
		fresh, err := svc.Login(ctx, "alice-renamed", "password123")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if err := svc.Deactivate(ctx, alice.ID); err != nil {
			t.Fatalf("Deactivate() error = %v", err)
		}
		if _, err := svc.Authenticate(ctx, fresh.AccessToken); !errors.Is(err, ErrUserInactive) {
			t.Errorf("Authenticate() error = %v, want ErrUserInactive", err)
		}
	})
}

func TestService_Update(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice")
	register(t, svc, "bob")

	name := "Alice Liddell"
	got, err := svc.Update(ctx, alice.ID, UserPatch{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != name || got.Username != "alice" || got.Email != "alice@example.com" {
		t.Errorf("Update() = %+v, only name should change", got)
	}

	empty := ""
	bobName := "bob"
	badEmail := "nope"
	tests := []struct {
		name  string
		patch UserPatch
		want  error
	}{
		{"empty name", UserPatch{Name: &empty}, ErrInvalid},
		{"bad email", UserPatch{Email: &badEmail}, ErrInvalid},
		{"username taken", UserPatch{Username: &bobName}, ErrUsernameExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Update(ctx, alice.ID, tt.patch); !errors.Is(err, tt.want) {
				t.Errorf("Update() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := svc.Update(ctx, "missing", UserPatch{Name: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestService_Deactivate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := register(t, svc, "alice")

	for range 2 {
		if err := svc.Deactivate(ctx, alice.ID); err != nil {
			t.Fatalf("Deactivate() error = %v", err)
		}
	}

	got, err := svc.Get(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.IsActive {
		t.Error("user should be inactive")
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 1 {
		t.Errorf("List() len = %d, want 1 (deactivation keeps the row)", len(users))
	}

	if err := svc.Deactivate(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Deactivate(missing) error = %v, want ErrUserNotFound", err)
	}
}
