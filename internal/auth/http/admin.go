package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// AdminHandler serves the admin dashboard and account management. Every
// route is behind RequireAdmin.
type AdminHandler struct {
	web
	AdminService *service.AdminService
}

func (h *AdminHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.AdminService.Dashboard(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_dashboard", page{Title: "Admin Dashboard", Data: dash})
}

func (h *AdminHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.AdminService.ListUsers(r.Context(), pageParam(r), service.AdminUsersPerPage)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_users", page{Title: "User Management", Data: users})
}

func (h *AdminHandler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFrom(ctx)

	id := r.PathValue("id")
	if !idx.Valid(id) {
		h.notFound(w, r)
		return
	}

	user, err := h.AdminService.ToggleActive(ctx, p.UserID, id)
	if err != nil {
		h.toggleFailed(w, r, err)
		return
	}

	status := "deactivated"
	if user.IsActive {
		status = "activated"
	}
	h.flashRedirect(w, r, flashSuccess, "User "+user.Username+" has been "+status+".", "/admin/users")
}

func (h *AdminHandler) HandleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFrom(ctx)

	id := r.PathValue("id")
	if !idx.Valid(id) {
		h.notFound(w, r)
		return
	}

	user, err := h.AdminService.ToggleAdmin(ctx, p.UserID, id)
	if err != nil {
		h.toggleFailed(w, r, err)
		return
	}

	msg := "User " + user.Username + " is no longer an administrator."
	if user.IsAdmin {
		msg = "User " + user.Username + " is now an administrator."
	}
	h.flashRedirect(w, r, flashSuccess, msg, "/admin/users")
}

func (h *AdminHandler) toggleFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrCannotModifySelf):
		h.flashRedirect(w, r, flashError, "You cannot change your own account status.", "/admin/users")
	case errors.Is(err, service.ErrPermissionDenied):
		h.forbidden(w, r)
	case errors.Is(err, service.ErrUserNotFound):
		h.notFound(w, r)
	default:
		h.serverError(w, r, err)
	}
}
