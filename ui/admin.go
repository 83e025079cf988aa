package ui

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"gorecal/app"
)

// AdminServer exposes operational endpoints on the admin port: liveness,
// readiness (database + chain integrity), and a status summary
type AdminServer struct {
	router   *chi.Mux
	db       *sqlx.DB
	forensic *app.ForensicService
	monitor  *app.MonitorService
	reweight *app.ReweightService
}

// NewAdminServer creates the admin router
func NewAdminServer(db *sqlx.DB, forensic *app.ForensicService, monitor *app.MonitorService, reweight *app.ReweightService) *AdminServer {
	a := &AdminServer{
		router:   chi.NewRouter(),
		db:       db,
		forensic: forensic,
		monitor:  monitor,
		reweight: reweight,
	}

	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)

	a.router.Get("/healthz", a.handleHealthz)
	a.router.Get("/readyz", a.handleReadyz)
	a.router.Get("/status", a.handleStatus)

	return a
}

// Router exposes the chi mux for testing
func (a *AdminServer) Router() *chi.Mux {
	return a.router
}

// Start starts the admin HTTP server
func (a *AdminServer) Start(addr string) error {
	log.Printf("Starting admin server on http://%s", addr)
	return http.ListenAndServe(addr, a.router)
}

func (a *AdminServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Admin] Failed to encode response: %v", err)
	}
}

// handleHealthz reports process liveness
func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness: database reachable and audit chain intact
func (a *AdminServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "database unreachable: " + err.Error(),
			})
			return
		}
	}

	if verify := a.forensic.VerifyChain(); !verify.Valid {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"reason": "audit chain invalid",
			"verify": verify,
		})
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStatus summarizes the running system
func (a *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain_head":       a.forensic.Head().String(),
		"chain_length":     a.forensic.ChainLength(),
		"live_predictions": a.monitor.LiveCount(),
		"source_count":     a.reweight.Table().Len(),
		"exogenous_share":  a.reweight.Weights().ExogenousSum(),
	})
}
