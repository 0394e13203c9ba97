package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/mohitkumar/autoflow/engine"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// EventProcessor is the engine side of event ingestion and execution queries.
type EventProcessor interface {
	Process(ctx context.Context, ev model.Event) ([]engine.Admission, error)
	Publish(ev model.Event) bool
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
}

type AuditReader interface {
	ListExecutions(ctx context.Context, flowId string, filter model.ExecutionFilter) ([]*model.Execution, error)
	Entries(ctx context.Context, executionId string) ([]model.AuditEntry, error)
	FlowEntries(ctx context.Context, flowId string) ([]model.AuditEntry, error)
}

type Server struct {
	http.Server
	Port            int
	metadataService metadata.MetadataService
	events          EventProcessor
	audit           AuditReader
}

func NewServer(httpPort int, metadataService metadata.MetadataService, events EventProcessor, audit AuditReader) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService: metadataService,
		events:          events,
		audit:           audit,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flows", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows", s.HandleListFlows).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleUpdateFlow).Methods(http.MethodPut)
	router.HandleFunc("/flows/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flows/{id}/enable", s.HandleEnableFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/disable", s.HandleDisableFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/executions", s.HandleListExecutions).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}/audit", s.HandleGetFlowAudit).Methods(http.MethodGet)

	router.HandleFunc("/executions/{id}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{id}/audit", s.HandleGetAudit).Methods(http.MethodGet)

	router.HandleFunc("/events", s.HandleEvent).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
