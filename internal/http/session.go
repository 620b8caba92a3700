package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/session"
)

type loginRequest struct {
	IDToken string `json:"idToken"`
}

type profileRequest struct {
	Name string `json:"name"`
}

type sessionResponse struct {
	models.Session
	NeedsProfileSetup bool `json:"needsProfileSetup"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{Session: s, NeedsProfileSetup: s.NeedsProfileSetup()}
}

// PostSession handles POST /session: exchanges an identity token for a session.
func (h *Handler) PostSession(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.sessions.Login(r.Context(), req.IDToken)
	switch {
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "identity token rejected")
		return
	case err != nil:
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, _ := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// PatchSession handles PATCH /session: completes profile setup with a display name.
func (h *Handler) PatchSession(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cur, _ := session.FromContext(r.Context())
	s, err := h.sessions.UpdateName(r.Context(), cur.Token, req.Name)
	switch {
	case errors.Is(err, session.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, "INVALID_NAME", err.Error())
		return
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "session expired")
		return
	case err != nil:
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// DeleteSession handles DELETE /session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s, _ := session.FromContext(r.Context())
	if err := h.sessions.Logout(r.Context(), s.Token); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionMiddleware resolves "Authorization: Bearer <token>" into a session in the
// request context. Requests without a valid token pass through anonymously;
// RequireSession rejects them where a session is mandatory.
func SessionMiddleware(sessions *session.Manager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if sessions == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			s, err := sessions.Get(r.Context(), token)
			if err != nil {
				if !errors.Is(err, session.ErrSessionNotFound) {
					loggerFrom(r, zap.NewNop()).Warn("session lookup failed", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := session.NewContext(r.Context(), s)
			if logger, ok := ctx.Value("logger").(*zap.Logger); ok && logger != nil {
				ctx = context.WithValue(ctx, "logger", logger.With(zap.String("user_id", s.UserID)))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession answers 401 unless SessionMiddleware placed a session in the context.
func RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.FromContext(r.Context()); !ok {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "a valid session token is required")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
