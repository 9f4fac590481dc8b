// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/auth/authtest"
	"github.com/wardenauth/warden/internal/auth/mocks"
	"github.com/wardenauth/warden/pkg/errutil"
)

type serviceMocks struct {
	accounts *mocks.MockAccountRepository
	hasher   *mocks.MockPasswordHasher
	tokens   *mocks.MockTokens
	resets   *mocks.MockResetCodes
	notifier *mocks.MockResetNotifier
}

func newMockedService(t *testing.T) (*auth.Service, serviceMocks) {
	t.Helper()
	m := serviceMocks{
		accounts: mocks.NewMockAccountRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		tokens:   mocks.NewMockTokens(t),
		resets:   mocks.NewMockResetCodes(t),
		notifier: mocks.NewMockResetNotifier(t),
	}
	svc, err := auth.NewService(auth.ServiceDeps{
		Accounts: m.accounts,
		Hasher:   m.hasher,
		Tokens:   m.tokens,
		Resets:   m.resets,
		Notifier: m.notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, auth.ServiceConfig{RevokeOnPasswordChange: true, BootstrapToken: "bootstrap-token"})
	require.NoError(t, err)
	return svc, m
}

func TestNewService_NilDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	full := func() auth.ServiceDeps {
		return auth.ServiceDeps{
			Accounts: mocks.NewMockAccountRepository(t),
			Hasher:   mocks.NewMockPasswordHasher(t),
			Tokens:   mocks.NewMockTokens(t),
			Resets:   mocks.NewMockResetCodes(t),
			Notifier: mocks.NewMockResetNotifier(t),
			Logger:   logger,
		}
	}
	tests := []struct {
		name        string
		mutate      func(*auth.ServiceDeps)
		expectError string
	}{
		{"nil accounts", func(d *auth.ServiceDeps) { d.Accounts = nil }, "accounts repository is required"},
		{"nil hasher", func(d *auth.ServiceDeps) { d.Hasher = nil }, "password hasher is required"},
		{"nil tokens", func(d *auth.ServiceDeps) { d.Tokens = nil }, "token service is required"},
		{"nil resets", func(d *auth.ServiceDeps) { d.Resets = nil }, "reset code service is required"},
		{"nil notifier", func(d *auth.ServiceDeps) { d.Notifier = nil }, "reset notifier is required"},
		{"nil logger", func(d *auth.ServiceDeps) { d.Logger = nil }, "logger is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			svc, err := auth.NewService(deps, auth.ServiceConfig{})
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_SignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active user with normalized email", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "new@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", ctx, "P@ss1").Return("hashed", nil)
		m.accounts.On("Create", ctx, mock.MatchedBy(func(a *auth.Account) bool {
			return a.Email == "new@example.com" && a.PasswordHash == "hashed" &&
				a.Role == auth.RoleUser && a.IsActive
		})).Return(nil)

		view, err := svc.SignUp(ctx, auth.SignUpInput{Email: "  New@Example.com ", Password: "P@ss1"})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", view.Email)
		assert.Equal(t, auth.RoleUser, view.Role)
		assert.True(t, view.IsActive)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, m := newMockedService(t)
		existing := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(existing, nil)

		_, err := svc.SignUp(ctx, auth.SignUpInput{Email: "A@example.com", Password: "x"})
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateAccount)
	})

	t.Run("duplicate detected by the store", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", ctx, "x").Return("hashed", nil)
		m.accounts.On("Create", ctx, mock.Anything).Return(auth.ErrDuplicateEmail)

		_, err := svc.SignUp(ctx, auth.SignUpInput{Email: "a@example.com", Password: "x"})
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateAccount)
	})

	validation := []struct {
		name  string
		email string
		pw    string
	}{
		{"empty email", "", "x"},
		{"malformed email", "not-an-email", "x"},
		{"display name", "Bob <bob@example.com>", "x"},
		{"long email", strings.Repeat("a", 250) + "@example.com", "x"},
		{"empty password", "a@example.com", ""},
		{"oversized password", "a@example.com", strings.Repeat("p", auth.MaxPasswordBytes+1)},
	}
	for _, tt := range validation {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newMockedService(t)
			_, err := svc.SignUp(ctx, auth.SignUpInput{Email: tt.email, Password: tt.pw})
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
		})
	}

	t.Run("repository failure is internal", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(nil, errors.New("connection refused"))

		_, err := svc.SignUp(ctx, auth.SignUpInput{Email: "a@example.com", Password: "x"})
		errutil.AssertErrorCode(t, err, "AUTH_SIGNUP_FAILED")
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	account := auth.NewAccount("a@example.com", "stored-hash", auth.RoleUser, time.Now())
	pair := &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	t.Run("success", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.hasher.On("Verify", ctx, "pw", "stored-hash").Return(true, nil)
		m.hasher.On("NeedsUpgrade", "stored-hash").Return(false)
		m.tokens.On("Issue", ctx, account).Return(pair, nil)

		got, err := svc.Login(ctx, "A@Example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, pair, got)
	})

	t.Run("unknown email still verifies against the dummy hash", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Verify", ctx, "pw", mock.MatchedBy(func(h string) bool {
			return strings.HasPrefix(h, "$argon2id$")
		})).Return(false, nil)

		_, err := svc.Login(ctx, "ghost@example.com", "pw")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("wrong password has the same failure as unknown email", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.hasher.On("Verify", ctx, "bad", "stored-hash").Return(false, nil)

		_, err := svc.Login(ctx, "a@example.com", "bad")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		assert.Equal(t, "invalid email or password", err.Error())
	})

	t.Run("disabled account with correct password", func(t *testing.T) {
		svc, m := newMockedService(t)
		disabled := *account
		disabled.IsActive = false
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(&disabled, nil)
		m.hasher.On("Verify", ctx, "pw", "stored-hash").Return(true, nil)

		_, err := svc.Login(ctx, "a@example.com", "pw")
		errutil.AssertErrorCode(t, err, auth.CodeAccountDisabled)
	})

	t.Run("disabled account with wrong password reveals nothing", func(t *testing.T) {
		svc, m := newMockedService(t)
		disabled := *account
		disabled.IsActive = false
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(&disabled, nil)
		m.hasher.On("Verify", ctx, "bad", "stored-hash").Return(false, nil)

		_, err := svc.Login(ctx, "a@example.com", "bad")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("legacy hash is upgraded", func(t *testing.T) {
		svc, m := newMockedService(t)
		legacy := *account
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(&legacy, nil)
		m.hasher.On("Verify", ctx, "pw", "stored-hash").Return(true, nil)
		m.hasher.On("NeedsUpgrade", "stored-hash").Return(true)
		m.hasher.On("Hash", ctx, "pw").Return("upgraded", nil)
		m.accounts.On("UpdatePassword", ctx, account.ID, "upgraded", mock.Anything).Return(nil)
		m.tokens.On("Issue", ctx, mock.Anything).Return(pair, nil)

		_, err := svc.Login(ctx, "a@example.com", "pw")
		require.NoError(t, err)
	})

	t.Run("failed upgrade does not fail login", func(t *testing.T) {
		svc, m := newMockedService(t)
		legacy := *account
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(&legacy, nil)
		m.hasher.On("Verify", ctx, "pw", "stored-hash").Return(true, nil)
		m.hasher.On("NeedsUpgrade", "stored-hash").Return(true)
		m.hasher.On("Hash", ctx, "pw").Return("", errors.New("boom"))
		m.tokens.On("Issue", ctx, mock.Anything).Return(pair, nil)

		_, err := svc.Login(ctx, "a@example.com", "pw")
		require.NoError(t, err)
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(nil, errors.New("db down"))

		_, err := svc.Login(ctx, "a@example.com", "pw")
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("success revokes sessions", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "old-hash", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, account.ID).Return(account, nil)
		m.hasher.On("Verify", ctx, "old", "old-hash").Return(true, nil)
		m.hasher.On("Hash", ctx, "new").Return("new-hash", nil)
		m.accounts.On("UpdatePassword", ctx, account.ID, "new-hash", mock.Anything).Return(nil)
		m.tokens.On("RevokeAll", ctx, account.ID).Return(nil)

		require.NoError(t, svc.ChangePassword(ctx, account.ID, "old", "new"))
	})

	t.Run("wrong old password", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "old-hash", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, account.ID).Return(account, nil)
		m.hasher.On("Verify", ctx, "nope", "old-hash").Return(false, nil)

		err := svc.ChangePassword(ctx, account.ID, "nope", "new")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("empty new password", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "old-hash", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, account.ID).Return(account, nil)
		m.hasher.On("Verify", ctx, "old", "old-hash").Return(true, nil)

		err := svc.ChangePassword(ctx, account.ID, "old", "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("unknown account", func(t *testing.T) {
		svc, m := newMockedService(t)
		id := ulid.Make()
		m.accounts.On("FindByID", ctx, id).Return(nil, auth.ErrNotFound)

		err := svc.ChangePassword(ctx, id, "old", "new")
		errutil.AssertErrorCode(t, err, auth.CodeAccountNotFound)
	})

	t.Run("revocation failure keeps the old password", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "old-hash", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, account.ID).Return(account, nil)
		m.hasher.On("Verify", ctx, "old", "old-hash").Return(true, nil)
		m.hasher.On("Hash", ctx, "new").Return("new-hash", nil)
		m.tokens.On("RevokeAll", ctx, account.ID).Return(errors.New("redis down"))

		err := svc.ChangePassword(ctx, account.ID, "old", "new")
		errutil.AssertErrorCode(t, err, "AUTH_CHANGE_PASSWORD_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "revoke refresh tokens")
		m.accounts.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_ForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a code to an active account", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		expires := time.Now().Add(time.Minute)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.resets.On("Issue", ctx, "a@example.com").Return("123456", expires, nil)
		m.notifier.On("SendResetCode", ctx, auth.ResetNotification{
			Email: "a@example.com", Code: "123456", ExpiresAt: expires,
		}).Return(nil)

		require.NoError(t, svc.ForgotPassword(ctx, "A@example.com"))
	})

	t.Run("unknown email succeeds silently", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "ghost@example.com").Return(nil, auth.ErrNotFound)

		require.NoError(t, svc.ForgotPassword(ctx, "ghost@example.com"))
	})

	t.Run("disabled account succeeds silently", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		account.IsActive = false
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)

		require.NoError(t, svc.ForgotPassword(ctx, "a@example.com"))
	})

	t.Run("notifier failure is not surfaced", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.resets.On("Issue", ctx, "a@example.com").Return("123456", time.Now(), nil)
		m.notifier.On("SendResetCode", ctx, mock.Anything).Return(errors.New("broker down"))

		require.NoError(t, svc.ForgotPassword(ctx, "a@example.com"))
	})

	t.Run("malformed email is a validation failure", func(t *testing.T) {
		svc, _ := newMockedService(t)
		errutil.AssertErrorCode(t, svc.ForgotPassword(ctx, "nope"), auth.CodeValidation)
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid code", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.hasher.On("Hash", ctx, "new").Return("new-hash", nil)
		m.resets.On("Consume", ctx, "a@example.com", "000000").Return(false, nil)

		err := svc.ResetPassword(ctx, "a@example.com", "000000", "new")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidResetCode)
	})

	t.Run("empty password does not burn the code", func(t *testing.T) {
		svc, _ := newMockedService(t)
		err := svc.ResetPassword(ctx, "a@example.com", "123456", "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("success revokes sessions", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		m.hasher.On("Hash", ctx, "new").Return("new-hash", nil)
		m.resets.On("Consume", ctx, "a@example.com", "123456").Return(true, nil)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.accounts.On("UpdatePassword", ctx, account.ID, "new-hash", mock.Anything).Return(nil)
		m.tokens.On("RevokeAll", ctx, account.ID).Return(nil)

		require.NoError(t, svc.ResetPassword(ctx, "a@example.com", "123456", "new"))
	})

	t.Run("revocation failure fails the reset", func(t *testing.T) {
		svc, m := newMockedService(t)
		account := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		m.hasher.On("Hash", ctx, "new").Return("new-hash", nil)
		m.resets.On("Consume", ctx, "a@example.com", "123456").Return(true, nil)
		m.accounts.On("FindByEmail", ctx, "a@example.com").Return(account, nil)
		m.tokens.On("RevokeAll", ctx, account.ID).Return(errors.New("redis down"))

		err := svc.ResetPassword(ctx, "a@example.com", "123456", "new")
		errutil.AssertErrorCode(t, err, "AUTH_RESET_PASSWORD_FAILED")
		errutil.AssertErrorContext(t, err, "account_id", account.ID.String())
		m.accounts.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_UpdateUserRole(t *testing.T) {
	ctx := context.Background()
	superAdmin := auth.NewAccount("root@example.com", "h", auth.RoleSuperAdmin, time.Now())
	actor := auth.Principal{AccountID: superAdmin.ID, Role: auth.RoleSuperAdmin}

	t.Run("promotes and revokes target sessions", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("u@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, superAdmin.ID).Return(superAdmin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)
		m.accounts.On("UpdateRole", ctx, target.ID, auth.RoleAdmin, mock.Anything).Return(nil)
		m.tokens.On("RevokeAll", ctx, target.ID).Return(nil)

		view, err := svc.UpdateUserRole(ctx, actor, target.ID, auth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, view.Role)
	})

	t.Run("same role is a no-op", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("u@example.com", "h", auth.RoleAdmin, time.Now())
		m.accounts.On("FindByID", ctx, superAdmin.ID).Return(superAdmin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)

		view, err := svc.UpdateUserRole(ctx, actor, target.ID, auth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, view.Role)
	})

	t.Run("own role cannot change", func(t *testing.T) {
		svc, _ := newMockedService(t)
		_, err := svc.UpdateUserRole(ctx, actor, superAdmin.ID, auth.RoleUser)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("unknown role", func(t *testing.T) {
		svc, _ := newMockedService(t)
		_, err := svc.UpdateUserRole(ctx, actor, ulid.Make(), auth.Role("ROOT"))
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("unknown target", func(t *testing.T) {
		svc, m := newMockedService(t)
		missing := ulid.Make()
		m.accounts.On("FindByID", ctx, superAdmin.ID).Return(superAdmin, nil)
		m.accounts.On("FindByID", ctx, missing).Return(nil, auth.ErrNotFound)

		_, err := svc.UpdateUserRole(ctx, actor, missing, auth.RoleAdmin)
		errutil.AssertErrorCode(t, err, auth.CodeAccountNotFound)
	})

	t.Run("deactivated actor", func(t *testing.T) {
		svc, m := newMockedService(t)
		stale := *superAdmin
		stale.IsActive = false
		m.accounts.On("FindByID", ctx, superAdmin.ID).Return(&stale, nil)

		_, err := svc.UpdateUserRole(ctx, actor, ulid.Make(), auth.RoleAdmin)
		errutil.AssertErrorCode(t, err, auth.CodeAccountDisabled)
	})

	t.Run("demoted actor with a stale token", func(t *testing.T) {
		svc, m := newMockedService(t)
		demoted := *superAdmin
		demoted.Role = auth.RoleAdmin
		m.accounts.On("FindByID", ctx, superAdmin.ID).Return(&demoted, nil)

		_, err := svc.UpdateUserRole(ctx, actor, ulid.Make(), auth.RoleAdmin)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})
}

func TestService_UpdateAccountStatus(t *testing.T) {
	ctx := context.Background()
	admin := auth.NewAccount("admin@example.com", "h", auth.RoleAdmin, time.Now())
	adminActor := auth.Principal{AccountID: admin.ID, Role: auth.RoleAdmin}

	t.Run("admin deactivates a user", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("u@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)
		m.accounts.On("UpdateActiveStatus", ctx, target.ID, false, mock.Anything).Return(nil)
		m.tokens.On("RevokeAll", ctx, target.ID).Return(nil)

		view, err := svc.UpdateAccountStatus(ctx, adminActor, target.ID, false)
		require.NoError(t, err)
		assert.False(t, view.IsActive)
	})

	t.Run("admin cannot touch another admin", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("peer@example.com", "h", auth.RoleAdmin, time.Now())
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)

		_, err := svc.UpdateAccountStatus(ctx, adminActor, target.ID, false)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("admin cannot touch a super admin", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("root@example.com", "h", auth.RoleSuperAdmin, time.Now())
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)

		_, err := svc.UpdateAccountStatus(ctx, adminActor, target.ID, false)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("actor role comes from storage, not the token", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := auth.NewAccount("u@example.com", "h", auth.RoleUser, time.Now())
		forged := auth.Principal{AccountID: user.ID, Role: auth.RoleSuperAdmin}
		m.accounts.On("FindByID", ctx, user.ID).Return(user, nil)

		_, err := svc.UpdateAccountStatus(ctx, forged, ulid.Make(), false)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("own status cannot change", func(t *testing.T) {
		svc, _ := newMockedService(t)
		_, err := svc.UpdateAccountStatus(ctx, adminActor, admin.ID, false)
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("reactivation keeps sessions untouched", func(t *testing.T) {
		svc, m := newMockedService(t)
		target := auth.NewAccount("u@example.com", "h", auth.RoleUser, time.Now())
		target.IsActive = false
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)
		m.accounts.On("FindByID", ctx, target.ID).Return(target, nil)
		m.accounts.On("UpdateActiveStatus", ctx, target.ID, true, mock.Anything).Return(nil)

		view, err := svc.UpdateAccountStatus(ctx, adminActor, target.ID, true)
		require.NoError(t, err)
		assert.True(t, view.IsActive)
	})
}

func TestService_CheckActor(t *testing.T) {
	ctx := context.Background()

	t.Run("active actor with current role passes", func(t *testing.T) {
		svc, m := newMockedService(t)
		admin := auth.NewAccount("admin@example.com", "h", auth.RoleAdmin, time.Now())
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)

		require.NoError(t, svc.CheckActor(ctx, auth.Principal{AccountID: admin.ID, Role: auth.RoleAdmin}))
	})

	t.Run("deactivated actor is refused", func(t *testing.T) {
		svc, m := newMockedService(t)
		admin := auth.NewAccount("admin@example.com", "h", auth.RoleAdmin, time.Now())
		admin.IsActive = false
		m.accounts.On("FindByID", ctx, admin.ID).Return(admin, nil)

		err := svc.CheckActor(ctx, auth.Principal{AccountID: admin.ID, Role: auth.RoleAdmin})
		errutil.AssertErrorCode(t, err, auth.CodeAccountDisabled)
	})

	t.Run("demoted actor is refused", func(t *testing.T) {
		svc, m := newMockedService(t)
		user := auth.NewAccount("was-admin@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("FindByID", ctx, user.ID).Return(user, nil)

		err := svc.CheckActor(ctx, auth.Principal{AccountID: user.ID, Role: auth.RoleAdmin})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("deleted actor is unauthorized", func(t *testing.T) {
		svc, m := newMockedService(t)
		id := ulid.Make()
		m.accounts.On("FindByID", ctx, id).Return(nil, auth.ErrNotFound)

		err := svc.CheckActor(ctx, auth.Principal{AccountID: id, Role: auth.RoleAdmin})
		errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
	})
}

func TestService_GetAllUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		svc, m := newMockedService(t)
		a := auth.NewAccount("a@example.com", "h", auth.RoleUser, time.Now())
		m.accounts.On("ListFiltered", ctx, auth.AccountFilter{Offset: 0, Limit: auth.DefaultPageLimit}).
			Return([]*auth.Account{a}, 1, nil)

		page, err := svc.GetAllUsers(ctx, auth.UserFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, auth.DefaultPageLimit, page.Limit)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "a@example.com", page.Items[0].Email)
	})

	t.Run("filters and offset", func(t *testing.T) {
		svc, m := newMockedService(t)
		role := auth.RoleAdmin
		active := true
		m.accounts.On("ListFiltered", ctx, auth.AccountFilter{
			Role: &role, IsActive: &active, EmailPrefix: "ops", Offset: 20, Limit: 10,
		}).Return([]*auth.Account{}, 20, nil)

		page, err := svc.GetAllUsers(ctx, auth.UserFilter{
			Role: &role, IsActive: &active, EmailPrefix: " OPS", Page: 3, Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, 20, page.Total)
	})

	invalid := []auth.UserFilter{
		{Page: -1},
		{Limit: auth.MaxPageLimit + 1},
		{Limit: -5},
		{Role: func() *auth.Role { r := auth.Role("ROOT"); return &r }()},
	}
	for i, f := range invalid {
		t.Run("invalid filter "+string(rune('a'+i)), func(t *testing.T) {
			svc, _ := newMockedService(t)
			_, err := svc.GetAllUsers(ctx, f)
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
		})
	}
}

func TestService_CreateSuperAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("bootstrap token while none exists", func(t *testing.T) {
		h := authtest.NewHarness(t)
		view, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@example.com", Password: "pw", BootstrapToken: "bootstrap-token",
		})
		require.NoError(t, err)
		assert.Equal(t, auth.RoleSuperAdmin, view.Role)
		assert.Contains(t, h.Events.Kinds(), auth.EventSuperAdminCreated)

		_, err = h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "second@example.com", Password: "pw", BootstrapToken: "bootstrap-token",
		})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("wrong bootstrap token", func(t *testing.T) {
		h := authtest.NewHarness(t)
		_, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@example.com", Password: "pw", BootstrapToken: "guess",
		})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("bootstrap disabled when unset", func(t *testing.T) {
		h := authtest.NewHarness(t, func(c *authtest.HarnessConfig) { c.Service.BootstrapToken = "" })
		_, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@example.com", Password: "pw",
		})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})

	t.Run("existing super admin may create another", func(t *testing.T) {
		h := authtest.NewHarness(t)
		root, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@example.com", Password: "pw", Trusted: true,
		})
		require.NoError(t, err)
		rootID, err := auth.ParseAccountID(root.ID)
		require.NoError(t, err)

		_, err = h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email:    "second@example.com",
			Password: "pw",
			Actor:    &auth.Principal{AccountID: rootID, Role: auth.RoleSuperAdmin},
		})
		require.NoError(t, err)
	})

	t.Run("repository decides a racing bootstrap", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("ListFiltered", ctx, mock.Anything).Return(nil, 0, nil)
		m.accounts.On("FindByEmail", ctx, "root@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", ctx, "pw").Return("hashed", nil)
		m.accounts.On("CreateFirstSuperAdmin", ctx, mock.MatchedBy(func(a *auth.Account) bool {
			return a.Role == auth.RoleSuperAdmin
		})).Return(fmt.Errorf("claim bootstrap: %w", auth.ErrSuperAdminExists))

		_, err := svc.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@example.com", Password: "pw", BootstrapToken: "bootstrap-token",
		})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
		m.accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("trusted creation skips the bootstrap gate", func(t *testing.T) {
		svc, m := newMockedService(t)
		m.accounts.On("FindByEmail", ctx, "ops@example.com").Return(nil, auth.ErrNotFound)
		m.hasher.On("Hash", ctx, "pw").Return("hashed", nil)
		m.accounts.On("Create", ctx, mock.Anything).Return(nil)

		_, err := svc.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "ops@example.com", Password: "pw", Trusted: true,
		})
		require.NoError(t, err)
		m.accounts.AssertNotCalled(t, "CreateFirstSuperAdmin", mock.Anything, mock.Anything)
	})

	t.Run("concurrent bootstrap creates one super admin", func(t *testing.T) {
		h := authtest.NewHarness(t)
		const callers = 8
		errs := make(chan error, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
					Email:          fmt.Sprintf("root%d@example.com", i),
					Password:       "pw",
					BootstrapToken: "bootstrap-token",
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var created int
		for err := range errs {
			if err == nil {
				created++
				continue
			}
			errutil.AssertErrorCode(t, err, auth.CodeForbidden)
		}
		assert.Equal(t, 1, created)

		role := auth.RoleSuperAdmin
		_, total, err := h.Accounts.ListFiltered(ctx, auth.AccountFilter{Role: &role, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("admin may not", func(t *testing.T) {
		h := authtest.NewHarness(t, func(c *authtest.HarnessConfig) { c.Service.BootstrapToken = "" })
		admin := seedAccount(t, h, auth.RoleAdmin)
		_, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email:    "root@example.com",
			Password: "pw",
			Actor:    &auth.Principal{AccountID: admin.ID, Role: auth.RoleAdmin},
		})
		errutil.AssertErrorCode(t, err, auth.CodeForbidden)
	})
}

// End-to-end flows over the in-memory stores and real hashing and signing.
func TestService_Flows(t *testing.T) {
	ctx := context.Background()

	t.Run("sign up, log in, refresh", func(t *testing.T) {
		h := authtest.NewHarness(t)
		view, err := h.Service.SignUp(ctx, auth.SignUpInput{Email: "a@x.io", Password: "P@ss1"})
		require.NoError(t, err)
		assert.Equal(t, auth.RoleUser, view.Role)

		pair, err := h.Service.Login(ctx, "a@x.io", "P@ss1")
		require.NoError(t, err)

		principal, err := h.Guard.Authenticate("Bearer " + pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleUser, principal.Role)

		next, err := h.Service.RefreshTokens(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

		_, err = h.Service.RefreshTokens(ctx, pair.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeTokenReuseDetected)
	})

	t.Run("forgot and reset password", func(t *testing.T) {
		h := authtest.NewHarness(t)
		_, err := h.Service.SignUp(ctx, auth.SignUpInput{Email: "a@x.io", Password: "old"})
		require.NoError(t, err)
		session, err := h.Service.Login(ctx, "a@x.io", "old")
		require.NoError(t, err)

		require.NoError(t, h.Service.ForgotPassword(ctx, "a@x.io"))
		sent, ok := h.Notifier.Last("a@x.io")
		require.True(t, ok)

		valid, err := h.Service.VerifyResetCode(ctx, "a@x.io", sent.Code)
		require.NoError(t, err)
		assert.True(t, valid)

		require.NoError(t, h.Service.ResetPassword(ctx, "a@x.io", sent.Code, "new"))

		err = h.Service.ResetPassword(ctx, "a@x.io", sent.Code, "newer")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidResetCode)

		_, err = h.Service.Login(ctx, "a@x.io", "old")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		_, err = h.Service.Login(ctx, "a@x.io", "new")
		require.NoError(t, err)

		_, err = h.Service.RefreshTokens(ctx, session.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeTokenReuseDetected)
	})

	t.Run("reset fails while sessions cannot be revoked", func(t *testing.T) {
		h := authtest.NewHarness(t)
		_, err := h.Service.SignUp(ctx, auth.SignUpInput{Email: "a@x.io", Password: "old"})
		require.NoError(t, err)
		session, err := h.Service.Login(ctx, "a@x.io", "old")
		require.NoError(t, err)

		require.NoError(t, h.Service.ForgotPassword(ctx, "a@x.io"))
		sent, ok := h.Notifier.Last("a@x.io")
		require.True(t, ok)

		h.Refresh.FailRevokeAccount(errors.New("store unavailable"))
		err = h.Service.ResetPassword(ctx, "a@x.io", sent.Code, "new")
		errutil.AssertErrorCode(t, err, "TOKEN_REVOKE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "revoke refresh tokens")

		_, err = h.Service.Login(ctx, "a@x.io", "new")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

		h.Refresh.FailRevokeAccount(nil)
		require.NoError(t, h.Service.ForgotPassword(ctx, "a@x.io"))
		sent, ok = h.Notifier.Last("a@x.io")
		require.True(t, ok)
		require.NoError(t, h.Service.ResetPassword(ctx, "a@x.io", sent.Code, "new"))

		_, err = h.Service.RefreshTokens(ctx, session.RefreshToken)
		require.Error(t, err)
	})

	t.Run("forgot password for unknown email sends nothing", func(t *testing.T) {
		h := authtest.NewHarness(t)
		require.NoError(t, h.Service.ForgotPassword(ctx, "ghost@x.io"))
		assert.Empty(t, h.Notifier.Sent())
	})

	t.Run("deactivation blocks login and refresh", func(t *testing.T) {
		h := authtest.NewHarness(t)
		root, err := h.Service.CreateSuperAdmin(ctx, auth.CreateSuperAdminInput{
			Email: "root@x.io", Password: "pw", Trusted: true,
		})
		require.NoError(t, err)
		rootID, err := auth.ParseAccountID(root.ID)
		require.NoError(t, err)

		user, err := h.Service.SignUp(ctx, auth.SignUpInput{Email: "u@x.io", Password: "pw"})
		require.NoError(t, err)
		userID, err := auth.ParseAccountID(user.ID)
		require.NoError(t, err)
		session, err := h.Service.Login(ctx, "u@x.io", "pw")
		require.NoError(t, err)

		actor := auth.Principal{AccountID: rootID, Role: auth.RoleSuperAdmin}
		_, err = h.Service.UpdateAccountStatus(ctx, actor, userID, false)
		require.NoError(t, err)

		_, err = h.Service.Login(ctx, "u@x.io", "pw")
		errutil.AssertErrorCode(t, err, auth.CodeAccountDisabled)
		_, err = h.Service.RefreshTokens(ctx, session.RefreshToken)
		require.Error(t, err)

		got, err := h.Service.FindUserByID(ctx, userID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})

	t.Run("listing", func(t *testing.T) {
		h := authtest.NewHarness(t)
		for _, e := range []string{"a@x.io", "b@x.io", "c@y.io"} {
			_, err := h.Service.SignUp(ctx, auth.SignUpInput{Email: e, Password: "pw"})
			require.NoError(t, err)
		}

		page, err := h.Service.GetAllUsers(ctx, auth.UserFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "c@y.io", page.Items[0].Email)

		page, err = h.Service.GetAllUsers(ctx, auth.UserFilter{Limit: 2, Page: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "a@x.io", page.Items[0].Email)

		page, err = h.Service.GetAllUsers(ctx, auth.UserFilter{EmailPrefix: "b"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b@x.io", page.Items[0].Email)
	})
}
