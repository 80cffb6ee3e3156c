package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the first administrator
//	@Description	Creates the first administrator account. This endpoint is only available when a bootstrap token is configured and only while no accounts exist.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token for authorization"
//	@Param			request				body		authsdk.BootstrapRequest		true	"Administrator account"
//	@Success		201					{object}	authsdk.BootstrapResponse		"Administrator created"
//	@Failure		400					{object}	authsdk.ValidationErrorResponse	"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.ErrorResponse			"Missing or invalid bootstrap token, or system already bootstrapped"
//	@Failure		404					{object}	authsdk.ErrorResponse			"Bootstrap not enabled (no token configured)"
//	@Failure		409					{object}	authsdk.ErrorResponse			"Username or email already registered"
//	@Failure		500					{object}	authsdk.ErrorResponse			"Failed to create admin user"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeNotFound, "Bootstrap endpoint is not enabled").WriteError(w)
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized",
			"Bootstrap token is required in X-Bootstrap-Token header").WriteError(w)
		return
	}

	// 3. Parse request body and validate
	var req authsdk.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Request body must be valid JSON").WriteError(w)
		return
	}
	if errs := req.Validate(); errs != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidation,
			Message: "validation failed for some fields",
			Details: errs,
		})
		return
	}

	// 4. Perform bootstrap
	admin, err := h.BootstrapService.Bootstrap(r.Context(), token, service.AdminAccount{
		Username:  strings.TrimSpace(req.AdminUsername),
		Email:     strings.TrimSpace(req.AdminEmail),
		Password:  req.AdminPassword,
		FirstName: strings.TrimSpace(req.AdminFirstName),
		LastName:  strings.TrimSpace(req.AdminLastName),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapAlready):
			authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized", "System has already been bootstrapped").WriteError(w)
		case errors.Is(err, service.ErrBootstrapUnauthorized):
			authsdk.NewAPIError(http.StatusUnauthorized, "unauthorized", "Invalid bootstrap token").WriteError(w)
		case errors.Is(err, service.ErrDuplicateIdentity):
			authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, "Username or email already registered").WriteError(w)
		default:
			l.Error("bootstrap failed", "err", err)
			authsdk.NewAPIError(http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Failed to create admin user").WriteError(w)
		}
		return
	}

	// 5. Respond with the created admin ID
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{AdminUserID: admin.ID})
}
