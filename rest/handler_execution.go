package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/parameterizer"
	"go.uber.org/zap"
)

type executeRequest struct {
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req executeRequest
	if r.Body != nil {
		// An empty body means a run with default parameter values.
		json.NewDecoder(r.Body).Decode(&req)
		defer r.Body.Close()
	}
	execution, err := s.executions.Queue(id, req.Parameters)
	if err != nil {
		if verrs, ok := err.(parameterizer.ValidationErrors); ok {
			respondWithJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
			return
		}
		logger.Error("error queueing execution", zap.String("workflowId", id), zap.Error(err))
		respondNotFoundOrError(w, err, "workflow")
		return
	}
	respondWithJSON(w, http.StatusAccepted, execution)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	execution, err := s.executions.Get(id)
	if err != nil {
		respondNotFoundOrError(w, err, "execution")
		return
	}
	respondWithJSON(w, http.StatusOK, execution)
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	executions, err := s.executions.ByWorkflow(id, limit)
	if err != nil {
		logger.Error("error listing executions", zap.String("workflowId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing executions")
		return
	}
	respondWithJSON(w, http.StatusOK, executions)
}

func (s *Server) HandlePauseExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.executions.Pause(id); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondOK(w, "paused")
}

func (s *Server) HandleResumeExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.executions.Resume(id); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondOK(w, "resumed")
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.executions.Cancel(id); err != nil {
		respondWithError(w, http.StatusConflict, err.Error())
		return
	}
	respondOK(w, "cancelled")
}

func (s *Server) HandleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.executions.EmergencyStop()
	respondOK(w, "emergency stop raised")
}

func (s *Server) HandleClearEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.executions.ClearEmergencyStop()
	respondOK(w, "emergency stop cleared")
}

func (s *Server) HandleEmergencyStopStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]bool{"active": s.executions.EmergencyStopActive()})
}
