package training

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cragclub/backend/internal/telemetry/tracing"
	"github.com/cragclub/backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type EndSessionRequest struct {
	WorkoutMetrics  *WorkoutMetrics `json:"workoutMetrics,omitempty"`
	RecoveryFeeling *int            `json:"recoveryFeeling,omitempty"`
}

type EndSessionResponse struct {
	Session   Session `json:"session"`
	Intensity string  `json:"intensity"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

type DeleteSessionResponse struct {
	DeletedID string `json:"deletedId"`
}

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{
		tracker: tracker,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	trainingRouter := router.PathPrefix("/training").Subrouter()
	trainingRouter.HandleFunc("/{user}/session/start", handler.HandleStartSession).
		Methods("POST", "OPTIONS").Name("training-session-start")
	trainingRouter.HandleFunc("/{user}/session/end", handler.HandleEndSession).
		Methods("POST", "OPTIONS").Name("training-session-end")
	trainingRouter.HandleFunc("/{user}/session/current", handler.HandleCurrentSession).
		Methods("GET").Name("training-session-current")
	trainingRouter.HandleFunc("/{user}/session/{id}", handler.HandleDeleteSession).
		Methods("DELETE", "OPTIONS").Name("training-session-delete")
	trainingRouter.HandleFunc("/{user}/sessions", handler.HandleListSessions).
		Methods("GET").Name("training-sessions")
	trainingRouter.HandleFunc("/{user}/climb", handler.HandleAddClimb).
		Methods("POST", "OPTIONS").Name("training-climb-add")
	trainingRouter.HandleFunc("/{user}/climb/{id}", handler.HandleUpdateClimb).
		Methods("PUT", "OPTIONS").Name("training-climb-update")
	trainingRouter.HandleFunc("/{user}/climb/{id}", handler.HandleRemoveClimb).
		Methods("DELETE", "OPTIONS").Name("training-climb-remove")
	trainingRouter.HandleFunc("/{user}/recommendation", handler.HandleRecommendation).
		Methods("GET").Name("training-recommendation")
}

func (handler *Handler) managerFor(ctx context.Context, w http.ResponseWriter, r *http.Request) *Manager {
	userID := mux.Vars(r)["user"]
	if userID == "" {
		http.Error(w, "error, user empty", http.StatusBadRequest)
		return nil
	}

	m, err := handler.tracker.ManagerFor(ctx, userID)
	if err != nil {
		log.Errorf("failed to get training manager for %s: %s", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	return m
}

func (handler *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.startSession")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	session, err := m.StartSession()
	if errors.Is(err, ErrSessionAlreadyOpen) {
		http.Error(w, "a session is already open", http.StatusConflict)
		return
	}
	if err != nil {
		log.Errorf("failed to start session for %s: %s", m.UserID(), err)
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		log.Errorf("failed to marshal started session: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.Debugf("user %s started session %s", m.UserID(), session.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusCreated)
}

func (handler *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.endSession")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	var endReq EndSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "invalid content type", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&endReq); err != nil {
			log.Tracef("end session, unmarshal json params: %s", err)
			http.Error(w, "end session failed", http.StatusBadRequest)
			return
		}
	}

	if endReq.RecoveryFeeling != nil && (*endReq.RecoveryFeeling < 1 || *endReq.RecoveryFeeling > 5) {
		http.Error(w, "error, recovery feeling must be between 1 and 5", http.StatusBadRequest)
		return
	}

	session, err := m.EndSession(endReq.WorkoutMetrics, endReq.RecoveryFeeling)
	if errors.Is(err, ErrNoOpenSession) {
		http.Error(w, "no open session", http.StatusConflict)
		return
	}
	if err != nil {
		log.Errorf("failed to end session for %s: %s", m.UserID(), err)
		http.Error(w, "failed to end session", http.StatusInternalServerError)
		return
	}

	endResp := EndSessionResponse{
		Session:   *session,
		Intensity: IntensityLabel(*session.SII),
	}

	endRespJson, err := json.Marshal(endResp)
	if err != nil {
		log.Errorf("failed to marshal ended session: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, endRespJson, http.StatusOK)
}

func (handler *Handler) HandleCurrentSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.currentSession")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	session := m.OpenSession()
	if session == nil {
		http.Error(w, "no open session", http.StatusNotFound)
		return
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		log.Errorf("failed to marshal open session: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusOK)
}

func (handler *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.listSessions")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	sessions := m.Sessions()
	listRespJson, err := json.Marshal(ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
	if err != nil {
		log.Errorf("failed to marshal sessions: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listRespJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.deleteSession")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	sessionID := mux.Vars(r)["id"]
	if sessionID == "" {
		http.Error(w, "error, session id empty", http.StatusBadRequest)
		return
	}

	if err := m.DeleteSession(sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to delete session %s for %s: %s", sessionID, m.UserID(), err)
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteSessionResponse{
		DeletedID: sessionID,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleAddClimb(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.addClimb")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var climbReq struct {
		Grade           string  `json:"grade"`
		DurationMinutes float64 `json:"durationMinutes"`
		NumberOfTakes   int     `json:"numberOfTakes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&climbReq); err != nil {
		log.Tracef("add climb, unmarshal json params: %s", err)
		http.Error(w, "add climb failed", http.StatusBadRequest)
		return
	}

	if climbReq.Grade == "" {
		http.Error(w, "error, grade empty", http.StatusBadRequest)
		return
	}
	if climbReq.DurationMinutes <= 0 {
		http.Error(w, "error, duration must be positive", http.StatusBadRequest)
		return
	}
	if climbReq.NumberOfTakes < 0 {
		http.Error(w, "error, number of takes negative", http.StatusBadRequest)
		return
	}

	climb := m.AddClimb(climbReq.Grade, climbReq.DurationMinutes, climbReq.NumberOfTakes)
	if climb == nil {
		http.Error(w, "no open session", http.StatusConflict)
		return
	}

	climbJson, err := json.Marshal(climb)
	if err != nil {
		log.Errorf("failed to marshal climb: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, climbJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdateClimb(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.updateClimb")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	climbID := mux.Vars(r)["id"]
	if climbID == "" {
		http.Error(w, "error, climb id empty", http.StatusBadRequest)
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var update ClimbUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Tracef("update climb, unmarshal json params: %s", err)
		http.Error(w, "update climb failed", http.StatusBadRequest)
		return
	}

	if !m.UpdateClimb(climbID, update) {
		http.Error(w, "climb not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"updated": true}`)
}

func (handler *Handler) HandleRemoveClimb(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.removeClimb")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	climbID := mux.Vars(r)["id"]
	if climbID == "" {
		http.Error(w, "error, climb id empty", http.StatusBadRequest)
		return
	}

	if !m.RemoveClimb(climbID) {
		http.Error(w, "climb not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"removed": true}`)
}

func (handler *Handler) HandleRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.training.recommendation")
	defer span.End()

	m := handler.managerFor(ctx, w, r)
	if m == nil {
		return
	}

	recommendation := m.Recommendation()
	recommendationJson, err := json.Marshal(recommendation)
	if err != nil {
		log.Errorf("failed to marshal recommendation: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, recommendationJson, http.StatusOK)
}
