package handlers

import (
	"net/http"

	"event-portal/internal/services"
	"event-portal/internal/status"
	"event-portal/models"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"
)

type CredentialHandler struct {
	issuer  *services.CredentialIssuer
	cache   *services.StatusCache
	backend services.Backend
	logger  *zap.Logger
}

func NewCredentialHandler(issuer *services.CredentialIssuer, cache *services.StatusCache, backend services.Backend, logger *zap.Logger) *CredentialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialHandler{issuer: issuer, cache: cache, backend: backend, logger: logger}
}

// GetCredential serves the attendance QR code as PNG, or as JSON with a
// data URL when format=json. While the code cannot be rendered the
// response is a placeholder with status 202.
func (h *CredentialHandler) GetCredential(c echo.Context) error {
	sess := sessionFrom(c)
	if !sess.Authenticated() {
		return respondError(c, status.ErrUnauthenticated)
	}
	eventID := models.ID(c.PathParam("eventId"))

	st, err := h.cache.Load(c.Request().Context(), h.backend, sess, eventID, false)
	if err != nil {
		return respondError(c, err)
	}

	cred, err := h.issuer.Issue(st)
	if err != nil {
		return respondError(c, err)
	}
	if cred.Placeholder {
		return c.JSON(http.StatusAccepted, cred)
	}

	etag := `"` + cred.Fingerprint + `"`
	c.Response().Header().Set("ETag", etag)
	c.Response().Header().Set("Cache-Control", "private, no-cache")

	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, map[string]any{
			"event_id":    cred.EventID,
			"fingerprint": cred.Fingerprint,
			"image":       cred.DataURL(),
		})
	}
	if c.Request().Header.Get("If-None-Match") == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, "image/png", cred.PNG)
}
