package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// UsersHandler serves the home page and the member directory.
type UsersHandler struct {
	web
	UserService  *service.UserService
	AdminService *service.AdminService
}

type homePage struct {
	TotalUsers int
}

func (h *UsersHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	total, err := h.UserService.CountUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "index", page{Title: "Home", Data: homePage{TotalUsers: total}})
}

func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.AdminService.ListUsers(r.Context(), pageParam(r), service.UsersPerPage)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "users", page{Title: "Users", Data: users})
}

func (h *UsersHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !idx.Valid(id) {
		h.notFound(w, r)
		return
	}

	user, err := h.UserService.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			h.notFound(w, r)
			return
		}
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "user_detail", page{Title: "User: " + user.Username, Data: user})
}

// pageParam reads the 1-based ?page= parameter. Anything unparsable is page 1
// and large values stop at service.MaxPage.
func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, service.MaxPage)
}
