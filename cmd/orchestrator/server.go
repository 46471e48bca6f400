package main

import (
	"context"
	"encoding/json"
	"net/http"

	"loanflow/internal/audit"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/observability"
	"loanflow/internal/decision"
	"loanflow/internal/models"
	"loanflow/internal/notify"
	"loanflow/internal/orchestrator"
)

// apiServer exposes the application-intake and audit-lookup interfaces.
type apiServer struct {
	orch     *orchestrator.Orchestrator
	recorder *audit.Recorder
	store    *decision.Store
	notifier *notify.Notifier
	obs      *observability.Observability
	logger   logger.Logger
}

func newAPIServer(orch *orchestrator.Orchestrator, recorder *audit.Recorder, store *decision.Store, notifier *notify.Notifier, obs *observability.Observability, log logger.Logger) *apiServer {
	return &apiServer{
		orch:     orch,
		recorder: recorder,
		store:    store,
		notifier: notifier,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/applications", s.handleSubmit)
	mux.HandleFunc("GET /v1/audit/{applicationID}", s.handleAuditLookup)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type submitResponse struct {
	CorrelationID string           `json:"correlationId"`
	Decision      *models.Decision `json:"decision"`
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if err := json.NewDecoder(r.Body).Decode(&app); err != nil {
		http.Error(w, "invalid application payload", http.StatusBadRequest)
		return
	}
	if app.ApplicationID == "" || app.ApplicantID == "" || app.Amount <= 0 || app.TermMonths <= 0 {
		http.Error(w, "applicationId, applicantId, amount and termMonths are required", http.StatusBadRequest)
		return
	}

	d := s.orch.Run(r.Context(), &app)

	// Persistence and notification are post-decision side effects; they must
	// not block or fail the response.
	bgCtx := context.WithoutCancel(r.Context())
	if s.store != nil {
		if err := s.store.Save(bgCtx, d); err != nil {
			s.logger.Error("decision persistence failed", map[string]interface{}{
				"correlationId": d.CorrelationID,
				"error":         err,
			})
		}
	}
	if s.notifier != nil {
		go s.notifier.DecisionIssued(bgCtx, d)
	}
	s.obs.RecordWorkflowProcessed(bgCtx, string(d.Outcome))
	s.obs.RecordWorkflowDuration(bgCtx, d.Elapsed, string(d.Outcome))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(submitResponse{
		CorrelationID: d.CorrelationID,
		Decision:      d,
	})
}

func (s *apiServer) handleAuditLookup(w http.ResponseWriter, r *http.Request) {
	appID := r.PathValue("applicationID")
	if appID == "" {
		http.Error(w, "applicationID is required", http.StatusBadRequest)
		return
	}

	events, err := s.recorder.Lookup(r.Context(), appID)
	if err != nil {
		http.Error(w, "audit lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"applicationId": appID,
		"events":        events,
	})
}
