package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// AccountHandler serves the signed-in user's own profile and password pages.
// Every route is behind RequireUser.
type AccountHandler struct {
	web
	UserService *service.UserService
}

func (h *AccountHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "profile", page{Title: "My Profile"})
}

func (h *AccountHandler) HandleEditProfileForm(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	h.render(w, r, http.StatusOK, "edit_profile", page{
		Title: "Edit Profile",
		Form: profileForm{
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Bio:       u.Bio,
			AvatarURL: u.AvatarURL,
		},
	})
}

func (h *AccountHandler) HandleEditProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFrom(ctx)

	var form profileForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "edit_profile", page{Title: "Edit Profile", Form: form})
		return
	}
	if errs := validateForm(form); errs != nil {
		h.render(w, r, http.StatusOK, "edit_profile", page{Title: "Edit Profile", Form: form, Errors: errs})
		return
	}

	_, err := h.UserService.UpdateProfile(ctx, p.UserID, service.ProfileInput{
		Username:  form.Username,
		Email:     form.Email,
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Bio:       form.Bio,
		AvatarURL: form.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, service.ErrDuplicateIdentity) {
			h.render(w, r, http.StatusOK, "edit_profile", page{
				Title:  "Edit Profile",
				Form:   form,
				Errors: map[string]string{"username": "Username or email already taken. Please choose a different one."},
			})
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.flashRedirect(w, r, flashSuccess, "Profile updated successfully!", "/profile")
}

func (h *AccountHandler) HandleChangePasswordForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "change_password", page{Title: "Change Password", Form: changePasswordForm{}})
}

func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFrom(ctx)

	var form changePasswordForm
	if err := decodeForm(r, &form); err != nil {
		h.render(w, r, http.StatusBadRequest, "change_password", page{Title: "Change Password", Form: changePasswordForm{}})
		return
	}
	if errs := validateForm(form); errs != nil {
		h.render(w, r, http.StatusOK, "change_password", page{Title: "Change Password", Form: changePasswordForm{}, Errors: errs})
		return
	}

	err := h.UserService.ChangePassword(ctx, p.UserID, form.CurrentPassword, form.NewPassword, p.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.render(w, r, http.StatusOK, "change_password", page{
				Title:  "Change Password",
				Form:   changePasswordForm{},
				Errors: map[string]string{"current_password": "Current password is incorrect."},
			})
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.flashRedirect(w, r, flashSuccess, "Password changed successfully!", "/profile")
}
