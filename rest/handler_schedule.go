package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/model"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched model.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed schedule")
		return
	}
	defer r.Body.Close()
	if err := s.scheduler.Create(&sched); err != nil {
		logger.Error("error creating schedule", zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, sched)
}

func (s *Server) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.storage.Schedules().List()
	if err != nil {
		logger.Error("error listing schedules", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing schedules")
		return
	}
	respondWithJSON(w, http.StatusOK, schedules)
}

func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sched, err := s.storage.Schedules().Get(id)
	if err != nil {
		respondNotFoundOrError(w, err, "schedule")
		return
	}
	respondWithJSON(w, http.StatusOK, sched)
}

func (s *Server) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.storage.Schedules().Get(id); err != nil {
		respondNotFoundOrError(w, err, "schedule")
		return
	}
	if err := s.storage.Schedules().Delete(id); err != nil {
		respondNotFoundOrError(w, err, "schedule")
		return
	}
	respondOK(w, "deleted")
}
