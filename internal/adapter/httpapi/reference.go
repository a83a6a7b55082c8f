package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"egyptoai/internal/usecase"
)

// healthTimeout bounds each backing-service check.
const healthTimeout = 2 * time.Second

func (h *handlers) quickPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

// countries reads page and limit from the query. Unparseable values fall
// back to the defaults.
func (h *handlers) countries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := h.reference.Countries(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createCountryRequest struct {
	Code     string `json:"code" validate:"required,max=8"`
	Name     string `json:"name" validate:"required,max=100"`
	FlagURL  string `json:"flagUrl" validate:"required,url,max=2048"`
	Language string `json:"language" validate:"required,max=100"`
}

// updateCountryRequest fields are optional; empty keeps the stored value.
type updateCountryRequest struct {
	Code     string `json:"code" validate:"omitempty,max=8"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	FlagURL  string `json:"flagUrl" validate:"omitempty,url,max=2048"`
	Language string `json:"language" validate:"omitempty,max=100"`
}

func (h *handlers) country(w http.ResponseWriter, r *http.Request) {
	c, err := h.reference.Country(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"country": c})
}

func (h *handlers) createCountry(w http.ResponseWriter, r *http.Request) {
	var req createCountryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.reference.CreateCountry(r.Context(), usecase.CountryInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"country": c})
}

func (h *handlers) updateCountry(w http.ResponseWriter, r *http.Request) {
	var req updateCountryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.reference.UpdateCountry(r.Context(), r.PathValue("id"), usecase.CountryInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"country": c})
}

func (h *handlers) deleteCountry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.reference.DeleteCountry(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *handlers) facts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"fact": h.reference.RandomFact()})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for _, c := range h.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			checks[c.Name] = err.Error()
			h.logger.Warn("health check failed", "check", c.Name, "error", err)
			continue
		}
		checks[c.Name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
