package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
)

type AuthHandler struct {
	identity ports.IdentityService
}

func NewAuthHandler(identity ports.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Login authenticates with email and password.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      domain.LoginRequest  true  "Login credentials"
// @Success      200   {object}  domain.AuthResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req domain.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.identity.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Register creates a user, and a company when companyName is given.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      domain.RegisterRequest  true  "Registration details"
// @Success      201   {object}  domain.AuthResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req domain.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.identity.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// Google signs in with a Google ID token.
//
// @Summary      Google sign-in
// @Tags         sso
// @Accept       json
// @Produce      json
// @Param        body  body      domain.GoogleLoginRequest  true  "Google ID token"
// @Success      200   {object}  domain.AuthResponse
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /auth/google [post]
func (h *AuthHandler) Google(c echo.Context) error {
	var req domain.GoogleLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.identity.LoginWithSSO(c.Request().Context(), domain.SSOGoogle, req.IDToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Microsoft signs in with a Microsoft Graph access token.
//
// @Summary      Microsoft sign-in
// @Tags         sso
// @Accept       json
// @Produce      json
// @Param        body  body      domain.MicrosoftLoginRequest  true  "Microsoft access token"
// @Success      200   {object}  domain.AuthResponse
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /auth/microsoft [post]
func (h *AuthHandler) Microsoft(c echo.Context) error {
	var req domain.MicrosoftLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.identity.LoginWithSSO(c.Request().Context(), domain.SSOMicrosoft, req.AccessToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      domain.RefreshRequest  true  "Refresh token"
// @Success      200   {object}  domain.AuthResponse
// @Failure      401   {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req domain.RefreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.identity.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes a refresh token.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Param        body  body  domain.LogoutRequest  true  "Refresh token"
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var req domain.LogoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.identity.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's user and company.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Session
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	session, err := h.identity.Me(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// RequestPasswordReset mails a reset token.
//
// @Summary      Request password reset
// @Tags         password
// @Accept       json
// @Param        body  body  domain.PasswordResetRequest  true  "Email"
// @Success      204
// @Router       /auth/password-reset/request [post]
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req domain.PasswordResetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.identity.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ConfirmPasswordReset sets a new password with a reset token.
//
// @Summary      Confirm password reset
// @Tags         password
// @Accept       json
// @Param        body  body  domain.PasswordResetConfirm  true  "Token and new password"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req domain.PasswordResetConfirm
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.identity.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetupMFA provisions a TOTP factor for the caller.
//
// @Summary      Set up MFA
// @Tags         mfa
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.MFASetupResponse
// @Router       /auth/mfa/setup [post]
func (h *AuthHandler) SetupMFA(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	resp, err := h.identity.SetupMFA(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// VerifyMFA checks a TOTP or backup code.
//
// @Summary      Verify MFA code
// @Tags         mfa
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  domain.MFAVerifyRequest  true  "Code"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /auth/mfa/verify [post]
func (h *AuthHandler) VerifyMFA(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	var req domain.MFAVerifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.identity.VerifyMFA(c.Request().Context(), userID, req); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ResendVerificationEmail issues a new verification token to the caller.
//
// @Summary      Resend verification email
// @Tags         email
// @Security     BearerAuth
// @Success      204
// @Router       /auth/verify-email/resend [post]
func (h *AuthHandler) ResendVerificationEmail(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	if err := h.identity.ResendVerificationEmail(c.Request().Context(), userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// VerifyEmail consumes a verification token.
//
// @Summary      Verify email
// @Tags         email
// @Accept       json
// @Param        body  body  domain.VerifyEmailRequest  true  "Token"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req domain.VerifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.identity.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
