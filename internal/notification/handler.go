package notification

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Notifier processes one notification.
type Notifier interface {
	Notify(ctx context.Context, orderNumber string) error
}

// Handler exposes the gateway webhook.
type Handler struct {
	notifier Notifier
}

// NewHandler creates a webhook handler.
func NewHandler(notifier Notifier) *Handler {
	return &Handler{notifier: notifier}
}

// Routes returns the webhook routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Notification)
	r.Post("/", h.Notification)
	return r
}

// Notification handles GET|POST /notification. The gateway always gets a plain
// 200 OK so that unresolvable notifications are not retried.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	if orderNumber := r.URL.Query().Get("transactionid"); orderNumber != "" {
		// Failures are logged by the notifier.
		_ = h.notifier.Notify(r.Context(), orderNumber)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
