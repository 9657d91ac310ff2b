package profile

import (
	"errors"
	"net/http"

	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/httputil"
	"github.com/redmonkez12/blog-api/internal/logging"
)

// Handler serves the authenticated user's profile
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Show returns the current user
// @Summary      Show profile
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} user.User
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /profile [get]
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	u, err := h.service.Show(r.Context(), userID)
	if err != nil {
		respondError(w, logger, "show profile", err)
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// Update applies a partial profile update
// @Summary      Update profile
// @Description  Change any of name, username, email, phone or avatar. Taken values are reported per field.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateInput true "Fields to change"
// @Success      200 {object} user.User
// @Failure      422 {object} httputil.ValidationErrorResponse
// @Router       /profile [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req UpdateInput
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid profile update body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	u, err := h.service.Update(r.Context(), userID, req)
	if err != nil {
		respondError(w, logger, "update profile", err)
		return
	}

	logger.Info("profile updated")
	httputil.RespondJSON(w, u, http.StatusOK)
}

// Delete soft-deletes the account and signs it out everywhere
// @Summary      Delete account
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /profile [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), userID); err != nil {
		respondError(w, logger, "delete profile", err)
		return
	}

	auth.ClearAuthCookies(w)
	httputil.RespondMessage(w, "Profile deleted successfully", http.StatusOK)
}

func respondError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		logger.Warn(op+" failed: validation error", "fields", verr.Fields)
		httputil.RespondValidationError(w, verr.Fields, http.StatusUnprocessableEntity)
	case errors.Is(err, auth.ErrNotFound):
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
	case errors.Is(err, auth.ErrUnavailable):
		logger.Error(op+" failed: store unavailable", "error", err.Error())
		httputil.RespondErrorWithCode(w, "service temporarily unavailable", httputil.CodeServiceUnavailable, http.StatusServiceUnavailable)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
