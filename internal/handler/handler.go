package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/iamvkosarev/archive-relay-bot/internal/templates"
)

// StatusSource supplies the numbers shown on the status page.
type StatusSource interface {
	Status() templates.StatusData
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() templates.StatusData

func (f StatusFunc) Status() templates.StatusData {
	return f()
}

type Handler struct {
	status StatusSource
}

func New(status StatusSource) *Handler {
	return &Handler{
		status: status,
	}
}

func (h *Handler) Index() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Status(h.status.Status()).Render(r.Context(), w); err != nil {
			log.Printf("[server] render status: %v", err)
		}
	}
}

func (h *Handler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}
