// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// BootstrapTokenHeader carries the one-time super admin bootstrap token.
const BootstrapTokenHeader = "X-Bootstrap-Token"

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.AccountView, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, accountID ulid.ULID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) (bool, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	UpdateUserRole(ctx context.Context, actor auth.Principal, targetID ulid.ULID, newRole auth.Role) (*auth.AccountView, error)
	CreateSuperAdmin(ctx context.Context, in auth.CreateSuperAdminInput) (*auth.AccountView, error)
	UpdateAccountStatus(ctx context.Context, actor auth.Principal, targetID ulid.ULID, isActive bool) (*auth.AccountView, error)
	FindUserByID(ctx context.Context, id ulid.ULID) (*auth.AccountView, error)
	GetAllUsers(ctx context.Context, filter auth.UserFilter) (*auth.AccountPage, error)
	CheckActor(ctx context.Context, actor auth.Principal) error
}

var _ AuthService = (*auth.Service)(nil)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=1024"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type verifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Code  string `json:"code" validate:"required,max=64"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,max=254"`
	Code        string `json:"code" validate:"required,max=64"`
	NewPassword string `json:"newPassword" validate:"required,max=1024"`
}

type updateUserRoleRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=USER ADMIN SUPER_ADMIN"`
}

type updateAccountStatusRequest struct {
	UserID   string `json:"userId" validate:"required"`
	IsActive *bool  `json:"isActive" validate:"required"`
}

type listUsersQuery struct {
	Role        string `query:"role" validate:"omitempty,oneof=USER ADMIN SUPER_ADMIN"`
	IsActive    string `query:"isActive" validate:"omitempty,oneof=true false"`
	EmailPrefix string `query:"emailPrefix" validate:"max=254"`
	Page        int    `query:"page" validate:"gte=0"`
	Limit       int    `query:"limit" validate:"gte=0,lte=100"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type signUpResponse struct {
	Message string            `json:"message"`
	User    *auth.AccountView `json:"user"`
}

type userStatusResponse struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	IsActive bool      `json:"isActive"`
	Role     auth.Role `json:"role"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "if the account exists, a reset code has been sent"

type handlers struct {
	svc AuthService
	now func() time.Time
}

func (h *handlers) signUp(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := h.svc.SignUp(c.Request().Context(), auth.SignUpInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, signUpResponse{Message: "user successfully registered", User: view})
}

func (h *handlers) login(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *handlers) refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.svc.RefreshTokens(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *handlers) logout(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) changePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ChangePassword(c.Request().Context(), p.AccountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *handlers) forgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

func (h *handlers) verifyResetCode(c echo.Context) error {
	var req verifyResetCodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ok, err := h.svc.VerifyResetCode(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code(auth.CodeInvalidResetCode).Errorf("invalid reset code")
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "reset code verified"})
}

func (h *handlers) resetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Email, req.Code, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password has been reset"})
}

func (h *handlers) updateUserRole(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req updateUserRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	targetID, err := auth.ParseAccountID(req.UserID)
	if err != nil {
		return err
	}
	view, err := h.svc.UpdateUserRole(c.Request().Context(), *p, targetID, auth.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *handlers) createSuperAdmin(c echo.Context) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	actor, _ := auth.PrincipalFromContext(c.Request().Context())
	view, err := h.svc.CreateSuperAdmin(c.Request().Context(), auth.CreateSuperAdminInput{
		Email:          req.Email,
		Password:       req.Password,
		Actor:          actor,
		BootstrapToken: c.Request().Header.Get(BootstrapTokenHeader),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *handlers) updateAccountStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req updateAccountStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	targetID, err := auth.ParseAccountID(req.UserID)
	if err != nil {
		return err
	}
	view, err := h.svc.UpdateAccountStatus(c.Request().Context(), *p, targetID, *req.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *handlers) getUserStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.svc.CheckActor(c.Request().Context(), *p); err != nil {
		return err
	}
	id, err := auth.ParseAccountID(c.Param("userId"))
	if err != nil {
		return err
	}
	view, err := h.svc.FindUserByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userStatusResponse{
		UserID:   view.ID,
		Email:    view.Email,
		IsActive: view.IsActive,
		Role:     view.Role,
	})
}

func (h *handlers) getAllUsers(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.svc.CheckActor(c.Request().Context(), *p); err != nil {
		return err
	}
	var q listUsersQuery
	if err := bind(c, &q); err != nil {
		return err
	}

	filter := auth.UserFilter{EmailPrefix: q.EmailPrefix, Page: q.Page, Limit: q.Limit}
	if q.Role != "" {
		role := auth.Role(q.Role)
		filter.Role = &role
	}
	if q.IsActive != "" {
		active, err := strconv.ParseBool(strings.ToLower(q.IsActive))
		if err != nil {
			return oops.Code(auth.CodeValidation).With("field", "isActive").Errorf("isActive must be true or false")
		}
		filter.IsActive = &active
	}

	page, err := h.svc.GetAllUsers(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Timestamp: h.now().UTC()})
}
