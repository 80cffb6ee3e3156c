package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

const invalidResetLink = "Invalid or expired password reset link."

// ResetHandler serves the forgotten-password flow. Signed-in users are sent
// home; they change their password from the profile instead.
type ResetHandler struct {
	web
	PasswordResetService *service.PasswordResetService
}

type resetPage struct {
	Token    string
	Username string
}

func (h *ResetHandler) HandleForgotForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.PrincipalFrom(r.Context()); ok {
		h.redirect(w, r, "/")
		return
	}
	h.render(w, r, http.StatusOK, "forgot_password", page{Title: "Forgot Password", Form: forgotPasswordForm{}})
}

// HandleForgot always answers with the same message so the form cannot be
// used to discover which accounts exist.
func (h *ResetHandler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := httpx.PrincipalFrom(ctx); ok {
		h.redirect(w, r, "/")
		return
	}

	var form forgotPasswordForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "forgot_password", page{Title: "Forgot Password", Form: form})
		return
	}
	if errs := validateForm(form); errs != nil {
		h.render(w, r, http.StatusOK, "forgot_password", page{Title: "Forgot Password", Form: form, Errors: errs})
		return
	}

	_ = h.PasswordResetService.RequestReset(ctx, form.Email)

	h.flashRedirect(w, r, flashInfo,
		"If an account matches, a password reset link has been sent. The link expires shortly, so use it soon.",
		"/login")
}

func (h *ResetHandler) HandleResetForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := httpx.PrincipalFrom(ctx); ok {
		h.redirect(w, r, "/")
		return
	}

	token := r.PathValue("token")
	user, err := h.PasswordResetService.ResolveToken(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			h.flashRedirect(w, r, flashError, invalidResetLink, "/forgot-password")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "reset_password", page{
		Title: "Reset Password",
		Form:  resetPasswordForm{},
		Data:  resetPage{Token: token, Username: user.Username},
	})
}

func (h *ResetHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := httpx.PrincipalFrom(ctx); ok {
		h.redirect(w, r, "/")
		return
	}

	token := r.PathValue("token")
	var form resetPasswordForm
	if err := decodeForm(r, &form); err != nil {
		h.flashRedirect(w, r, flashError, invalidResetLink, "/forgot-password")
		return
	}
	if errs := validateForm(form); errs != nil {
		user, err := h.PasswordResetService.ResolveToken(ctx, token)
		if err != nil {
			h.flashRedirect(w, r, flashError, invalidResetLink, "/forgot-password")
			return
		}
		h.render(w, r, http.StatusOK, "reset_password", page{
			Title:  "Reset Password",
			Form:   resetPasswordForm{},
			Errors: errs,
			Data:   resetPage{Token: token, Username: user.Username},
		})
		return
	}

	if err := h.PasswordResetService.ConsumeToken(ctx, token, form.Password); err != nil {
		if errors.Is(err, service.ErrTokenInvalid) {
			h.flashRedirect(w, r, flashError, invalidResetLink, "/forgot-password")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.flashRedirect(w, r, flashSuccess, "Password reset successful! You can now log in.", "/login")
}
