package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/platform/auth"
	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/services"
)

const maxProfileBodySize = 32 * 1024

// MeHandlers exposes the authenticated user's profile.
type MeHandlers struct {
	authn    *auth.Authenticator
	profiles services.ProfileService
}

// NewMeHandlers constructs the profile endpoints.
func NewMeHandlers(authn *auth.Authenticator, profiles services.ProfileService) *MeHandlers {
	return &MeHandlers{authn: authn, profiles: profiles}
}

// Routes wires the profile endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
}

func (h *MeHandlers) currentUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	profile, err := h.profiles.Get(ctx, userID)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"profile": buildProfilePayload(profile)})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}
	if h.profiles == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	// Distinguish absent fields from explicit nulls so a PATCH only touches
	// what the caller sent.
	var req struct {
		DisplayName json.RawMessage `json:"display_name"`
		Email       json.RawMessage `json:"email"`
	}
	if err := decodeJSONBody(r, maxProfileBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpdateProfileCommand{UserID: userID}
	if len(req.DisplayName) > 0 && !isJSONNull(req.DisplayName) {
		var name string
		if err := json.Unmarshal(req.DisplayName, &name); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "display_name must be a string", http.StatusBadRequest))
			return
		}
		cmd.DisplayName = &name
	}
	if len(req.Email) > 0 && !isJSONNull(req.Email) {
		var email string
		if err := json.Unmarshal(req.Email, &email); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email must be a string", http.StatusBadRequest))
			return
		}
		cmd.Email = &email
	}

	profile, err := h.profiles.Update(ctx, cmd)
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"profile": buildProfilePayload(profile)})
}

type profilePayload struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Tier        string `json:"tier"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		ID:          profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Role:        string(profile.Role),
		Tier:        string(domain.TierForRole(string(profile.Role))),
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

func writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrProfileInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProfileUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "profile operation failed", http.StatusInternalServerError))
	}
}
