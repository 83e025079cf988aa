package ui

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gorecal/app"
	"gorecal/domain/core"
	"gorecal/domain/ensemble"
	"gorecal/domain/outcome"
	"gorecal/internal/api"
	"gorecal/internal/report"
	"gorecal/ports"
)

// Server is the main JSON API for the recalibration engine: prediction
// registration and evaluation, weight inspection and control, chain access,
// and the live event stream
type Server struct {
	router    *gin.Engine
	monitor   *app.MonitorService
	reweight  *app.ReweightService
	forensic  *app.ForensicService
	admission *app.AdmissionGate
	reports   *report.Generator
	hub       *api.SSEHub
	evidence  *api.EvidenceHandler
	mutations ports.MutationRepository
}

// Deps bundles the server's dependencies
type Deps struct {
	Monitor   *app.MonitorService
	Reweight  *app.ReweightService
	Forensic  *app.ForensicService
	Admission *app.AdmissionGate
	Reports   *report.Generator
	Hub       *api.SSEHub
	Evidence  *api.EvidenceHandler
	Mutations ports.MutationRepository
}

// NewServer creates the API server and registers all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    gin.Default(),
		monitor:   deps.Monitor,
		reweight:  deps.Reweight,
		forensic:  deps.Forensic,
		admission: deps.Admission,
		reports:   deps.Reports,
		hub:       deps.Hub,
		evidence:  deps.Evidence,
		mutations: deps.Mutations,
	}

	s.setupRoutes()
	return s
}

// Router exposes the gin engine for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	// Prediction lifecycle
	s.router.POST("/api/predictions", s.handleRegisterPrediction)
	s.router.GET("/api/predictions", s.handleListPredictions)
	s.router.GET("/api/predictions/:id", s.handleGetPrediction)
	s.router.POST("/api/predictions/:id/evaluate", s.handleEvaluatePrediction)

	// Observation admission
	s.router.POST("/api/observations", s.handleAdmitObservation)

	// Ensemble weights
	s.router.GET("/api/weights", s.handleGetWeights)
	s.router.POST("/api/weights/decay", s.handleApplyDecay)
	s.router.POST("/api/weights/cap", s.handleSetCap)

	// Audit chain
	s.router.GET("/api/chain", s.handleListChain)
	s.router.GET("/api/chain/export", s.handleExportChain)
	s.router.POST("/api/chain/verify", s.handleVerifyChain)
	s.router.GET("/api/chain/:index", s.handleGetEntry)
	if s.evidence != nil {
		s.router.GET("/api/chain/:index/evidence", s.evidence.GetDecisionEvidence)
	}

	// Mutation history and reporting
	s.router.GET("/api/mutations", s.handleListMutations)
	s.router.GET("/api/report/latest", s.handleLatestReport)

	// Live event stream
	if s.hub != nil {
		s.router.GET("/api/events", s.hub.HandleSSE)
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	log.Printf("Starting recalibration API on http://%s", addr)
	return s.router.Run(addr)
}

type registerPredictionRequest struct {
	State      []float64 `json:"state" binding:"required"`
	Dim        int       `json:"dim" binding:"required"`
	ModelID    string    `json:"model_id"`
	SourcePath string    `json:"source_path" binding:"required"`
	Horizons   []string  `json:"horizons"`
}

// handleRegisterPrediction admits a packed SPD prediction into the live set
func (s *Server) handleRegisterPrediction(c *gin.Context) {
	var req registerPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	horizons := make([]outcome.Horizon, 0, len(req.Horizons))
	for _, raw := range req.Horizons {
		h, err := outcome.ParseHorizon(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid horizon: " + err.Error()})
			return
		}
		horizons = append(horizons, h)
	}

	record, err := s.monitor.RegisterPrediction(c.Request.Context(), req.State, req.Dim,
		core.ModelID(req.ModelID), req.SourcePath, horizons)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration rejected: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// handleListPredictions returns the live prediction set, newest first
func (s *Server) handleListPredictions(c *gin.Context) {
	live := s.monitor.LivePredictions()
	c.JSON(http.StatusOK, gin.H{
		"count":       len(live),
		"predictions": live,
	})
}

// handleGetPrediction returns one prediction record with any scored outcomes
func (s *Server) handleGetPrediction(c *gin.Context) {
	record, err := s.monitor.Prediction(core.PredictionID(c.Param("id")))
	if err != nil {
		if core.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Prediction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

type evaluateRequest struct {
	Horizon string    `json:"horizon" binding:"required"`
	Actual  []float64 `json:"actual" binding:"required"`
}

// handleEvaluatePrediction scores one prediction against a realized state
func (s *Server) handleEvaluatePrediction(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	h, err := outcome.ParseHorizon(req.Horizon)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid horizon: " + err.Error()})
		return
	}

	result, err := s.monitor.Evaluate(c.Request.Context(), core.PredictionID(c.Param("id")), h, req.Actual)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Evaluation failed: " + err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown prediction or unscheduled horizon"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type observationRequest struct {
	Path            string      `json:"path" binding:"required"`
	Value           interface{} `json:"value" binding:"required"`
	Kind            string      `json:"kind"`
	SourceID        string      `json:"source_id" binding:"required"`
	ModelID         string      `json:"model_id"`
	RegimeID        string      `json:"regime_id"`
	ConfidenceLower float64     `json:"confidence_lower"`
	ConfidenceUpper float64     `json:"confidence_upper"`
}

// handleAdmitObservation validates a producer observation and commits it to
// the shared registry
func (s *Server) handleAdmitObservation(c *gin.Context) {
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	kind, ok := parsePayloadKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payload kind: " + req.Kind})
		return
	}

	obs, err := ensemble.NewObservation(req.Path, req.Value, kind,
		core.SourceID(req.SourceID), core.ModelID(req.ModelID), core.RegimeID(req.RegimeID),
		ensemble.ConfidenceInterval{Lower: req.ConfidenceLower, Upper: req.ConfidenceUpper})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid observation: " + err.Error()})
		return
	}

	if err := s.admission.Admit(c.Request.Context(), obs); err != nil {
		if core.IsNotFoundError(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Source not in classification table"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, obs)
}

// parsePayloadKind maps a request kind string onto the tagged union
func parsePayloadKind(raw string) (ensemble.PayloadKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ensemble.PayloadGeneric, true
	case string(ensemble.PayloadMatrix):
		return ensemble.PayloadMatrix, true
	case string(ensemble.PayloadCovariance):
		return ensemble.PayloadCovariance, true
	case string(ensemble.PayloadScalar):
		return ensemble.PayloadScalar, true
	case string(ensemble.PayloadGeneric):
		return ensemble.PayloadGeneric, true
	default:
		return "", false
	}
}

// handleGetWeights returns the current weight vector with its class split
func (s *Server) handleGetWeights(c *gin.Context) {
	weights := s.reweight.Weights()
	endogenous, exogenous := weights.SplitByClass()
	c.JSON(http.StatusOK, gin.H{
		"weights":         weights,
		"endogenous":      endogenous,
		"exogenous":       exogenous,
		"exogenous_share": weights.ExogenousSum(),
	})
}

// handleApplyDecay forces one decay pass toward uniform weights
func (s *Server) handleApplyDecay(c *gin.Context) {
	if err := s.reweight.ApplyDecay(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Decay failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.reweight.Weights())
}

type capRequest struct {
	Cap float64 `json:"cap"`
}

// handleSetCap updates the exogenous cap and re-enforces it immediately
func (s *Server) handleSetCap(c *gin.Context) {
	var req capRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := s.reweight.SetCap(c.Request.Context(), req.Cap); err != nil {
		if core.IsConfigError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cap: " + err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.reweight.Weights())
}
