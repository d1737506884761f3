package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence"
	"go.uber.org/zap"
)

func (s *Server) HandleRecordAction(w http.ResponseWriter, r *http.Request) {
	var action model.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed action")
		return
	}
	defer r.Body.Close()
	if err := s.workflows.RecordAction(&action); err != nil {
		logger.Error("error recording action", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, action)
}

func (s *Server) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.List()
	if err != nil {
		logger.Error("error listing workflows", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing workflows")
		return
	}
	respondWithJSON(w, http.StatusOK, workflows)
}

func (s *Server) HandleDetect(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.DetectNow()
	if err != nil {
		logger.Error("error running detection", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error running detection")
		return
	}
	respondWithJSON(w, http.StatusOK, workflows)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.workflows.Get(id)
	if err != nil {
		respondNotFoundOrError(w, err, "workflow")
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.workflows.Delete(id); err != nil {
		respondNotFoundOrError(w, err, "workflow")
		return
	}
	respondOK(w, "deleted")
}

func (s *Server) HandleParameterize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	schema, err := s.workflows.Parameterize(id)
	if err != nil {
		respondNotFoundOrError(w, err, "workflow")
		return
	}
	respondWithJSON(w, http.StatusOK, schema)
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.workflows.Stats()
	if err != nil {
		logger.Error("error computing stats", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error computing stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func respondNotFoundOrError(w http.ResponseWriter, err error, kind string) {
	if _, ok := err.(persistence.NotFoundError); ok {
		respondWithError(w, http.StatusNotFound, kind+" does not exist")
		return
	}
	logger.Error("storage error", zap.String("kind", kind), zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, "storage error")
}
