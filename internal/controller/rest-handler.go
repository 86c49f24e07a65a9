package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sharetube/watchparty/internal/identity"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (c *controller) healthz(w http.ResponseWriter, r *http.Request) {
	resp := envelope{"status": "ok"}
	if c.stats != nil {
		for k, v := range c.stats() {
			resp[k] = v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type meResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// me verifies the bearer token and echoes its claims. Unlike /ws it never
// falls back to a guest.
func (c *controller) me(w http.ResponseWriter, r *http.Request) {
	token := identity.FromRequest(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, envelope{"error": "missing token"})
		return
	}

	ident, err := c.identity.Parse(token)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			c.logger.WarnContext(r.Context(), "failed to parse token", "error", err)
		}
		writeJSON(w, http.StatusUnauthorized, envelope{"error": "invalid token"})
		return
	}

	writeJSON(w, http.StatusOK, envelope{"data": meResponse{ID: ident.ID, Name: ident.Name}})
}
