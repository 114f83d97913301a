package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OverrideArmer is the minimal C8 surface the admin /debug/override route
// needs — satisfied directly by *killmail.Override.
type OverrideArmer interface {
	ArmSystem()
	ArmCharacter()
}

// overrideRequest is the POST /debug/override body: {"mode": "system"|"character"}.
type overrideRequest struct {
	Mode string `json:"mode"`
}

// Routes builds the minimal admin HTTP surface: GET /healthz, GET /metrics,
// POST /debug/override, grounded on the teacher's chi-based cmd/falcon
// router (middleware.Recoverer, middleware.RequestID).
func Routes(c *Collector, override OverrideArmer, aggregationWindow time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		latest, ok := c.Latest()
		agg := c.Aggregate(aggregationWindow)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"latest":      latest,
			"have_sample": ok,
			"aggregate":   agg,
			"error_count": c.ErrorCount(),
		})
	})

	if override != nil {
		r.Post("/debug/override", func(w http.ResponseWriter, r *http.Request) {
			var body overrideRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			switch body.Mode {
			case "system":
				override.ArmSystem()
			case "character":
				override.ArmCharacter()
			default:
				http.Error(w, "mode must be system or character", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		})
	}

	return r
}
