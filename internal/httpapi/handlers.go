package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/redis/go-redis/v9"

	"condoplex.org/internal/audit"
	"condoplex.org/internal/notify"
)

// ReadyProbe checks the gateway's backing services.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.Cmdable
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "condoplex-gateway",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "condoplex-gateway",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"upstream": a.upstreamName,
	})
}

// handlePublishNotification lets a permitted caller push a notification to a
// user's active sessions.
func (a *API) handlePublishNotification(w http.ResponseWriter, r *http.Request) {
	var req notify.Notification
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}
	published, err := a.notifier.Publish(r.Context(), req)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidNotification) {
			writeError(w, r, http.StatusBadRequest, "user_id, title and a known severity are required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "publish failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "notification.published", map[string]any{
		"notification_id": published.ID,
		"target_user":     published.UserID,
		"severity":        published.Severity,
	})
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, published)
}
