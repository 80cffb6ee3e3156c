package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// AuthHandler serves sign-in, sign-out and registration.
type AuthHandler struct {
	web
	UserService    *service.UserService
	SessionService *service.SessionService
}

func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.PrincipalFrom(r.Context()); ok {
		h.redirect(w, r, "/")
		return
	}
	h.render(w, r, http.StatusOK, "login", page{
		Title: "Sign In",
		Form:  loginForm{Next: r.URL.Query().Get("next")},
	})
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if _, ok := httpx.PrincipalFrom(ctx); ok {
		h.redirect(w, r, "/")
		return
	}

	var form loginForm
	if err := decodeForm(r, &form); err != nil {
		log.Info("bad login form", slog.Any("error", err))
		h.render(w, r, http.StatusBadRequest, "login", page{Title: "Sign In", Form: form})
		return
	}
	if errs := validateForm(form); errs != nil {
		h.render(w, r, http.StatusOK, "login", page{Title: "Sign In", Form: form, Errors: errs})
		return
	}

	user, err := h.UserService.Authenticate(ctx, form.Username, form.Password)
	if err != nil {
		form.Password = ""
		switch {
		case errors.Is(err, service.ErrAccountDisabled):
			h.render(w, r, http.StatusOK, "login", page{
				Title:   "Sign In",
				Form:    form,
				Flashes: []flash{{Category: flashError, Message: "Your account has been deactivated."}},
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			h.render(w, r, http.StatusOK, "login", page{
				Title:   "Sign In",
				Form:    form,
				Flashes: []flash{{Category: flashError, Message: "Invalid username/email or password."}},
			})
		default:
			h.serverError(w, r, err)
		}
		return
	}

	token, sess, err := h.SessionService.CreateSession(ctx, user, form.RememberMe, service.SessionMeta{
		UserAgent:  r.UserAgent(),
		RemoteAddr: httpx.ClientIP(r),
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.cookies.setSession(w, token, sess); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.flashRedirect(w, r, flashSuccess, "Welcome back, "+user.DisplayName()+"!", httpx.LocalPath(form.Next, "/"))
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFrom(ctx)

	if token, ok := h.cookies.sessionToken(r); ok {
		if err := h.SessionService.DestroySession(ctx, token); err != nil {
			h.serverError(w, r, err)
			return
		}
	}
	h.cookies.clearSession(w)

	slogx.FromContext(ctx).Info("user logged out", slog.String("session_id", p.SessionID))
	h.flashRedirect(w, r, flashInfo, "You have been logged out, "+p.Username+".", "/")
}

func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpx.PrincipalFrom(r.Context()); ok {
		h.redirect(w, r, "/")
		return
	}
	h.render(w, r, http.StatusOK, "register", page{Title: "Register", Form: registerForm{}})
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := httpx.PrincipalFrom(ctx); ok {
		h.redirect(w, r, "/")
		return
	}

	var form registerForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "register", page{Title: "Register", Form: form})
		return
	}
	if errs := validateForm(form); errs != nil {
		form.Password, form.Password2 = "", ""
		h.render(w, r, http.StatusOK, "register", page{Title: "Register", Form: form, Errors: errs})
		return
	}

	_, err := h.UserService.Register(ctx, service.RegisterInput{
		Username:  form.Username,
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		form.Password, form.Password2 = "", ""
		if errors.Is(err, service.ErrDuplicateIdentity) {
			h.render(w, r, http.StatusOK, "register", page{
				Title: "Register",
				Form:  form,
				Errors: map[string]string{
					"username": "Username or email already registered. Please choose a different one.",
				},
			})
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.flashRedirect(w, r, flashSuccess, "Registration successful! You can now log in.", "/login")
}
