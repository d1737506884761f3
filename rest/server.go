package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/recurhq/recur/logger"
	"github.com/recurhq/recur/persistence"
	"github.com/recurhq/recur/scheduler"
	"github.com/recurhq/recur/service"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port       int
	workflows  *service.WorkflowService
	executions *service.ExecutionService
	scheduler  *scheduler.Scheduler
	storage    persistence.Storage
}

func NewServer(httpPort int, workflows *service.WorkflowService, executions *service.ExecutionService,
	sched *scheduler.Scheduler, storage persistence.Storage) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:       httpPort,
		workflows:  workflows,
		executions: executions,
		scheduler:  sched,
		storage:    storage,
	}

	router := mux.NewRouter()
	router.HandleFunc("/actions", s.HandleRecordAction).Methods(http.MethodPost)
	router.HandleFunc("/stats", s.HandleStats).Methods(http.MethodGet)

	router.HandleFunc("/workflows", s.HandleListWorkflows).Methods(http.MethodGet)
	router.HandleFunc("/workflows/detect", s.HandleDetect).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}", s.HandleGetWorkflow).Methods(http.MethodGet)
	router.HandleFunc("/workflows/{id}", s.HandleDeleteWorkflow).Methods(http.MethodDelete)
	router.HandleFunc("/workflows/{id}/parameterize", s.HandleParameterize).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/execute", s.HandleExecuteWorkflow).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/executions", s.HandleListExecutions).Methods(http.MethodGet)

	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/pause", s.HandlePauseExecution).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}/resume", s.HandleResumeExecution).Methods(http.MethodPost)
	router.HandleFunc("/executions/{id}/cancel", s.HandleCancelExecution).Methods(http.MethodPost)

	router.HandleFunc("/stop", s.HandleEmergencyStop).Methods(http.MethodPost)
	router.HandleFunc("/stop", s.HandleClearEmergencyStop).Methods(http.MethodDelete)
	router.HandleFunc("/stop", s.HandleEmergencyStopStatus).Methods(http.MethodGet)

	router.HandleFunc("/schedules", s.HandleCreateSchedule).Methods(http.MethodPost)
	router.HandleFunc("/schedules", s.HandleListSchedules).Methods(http.MethodGet)
	router.HandleFunc("/schedules/{id}", s.HandleGetSchedule).Methods(http.MethodGet)
	router.HandleFunc("/schedules/{id}", s.HandleDeleteSchedule).Methods(http.MethodDelete)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
