package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"go.uber.org/zap"
)

func parseFilter(r *http.Request) (model.ExecutionFilter, error) {
	q := r.URL.Query()
	filter := model.ExecutionFilter{
		Status:        model.ExecutionStatus(q.Get("status")),
		Subject:       q.Get("subject"),
		TriggerNodeId: q.Get("trigger"),
	}
	var err error
	if v := q.Get("since"); v != "" {
		if filter.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, err
		}
	}
	if v := q.Get("until"); v != "" {
		if filter.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, err
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			return filter, err
		}
	}
	return filter, nil
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	filter, err := parseFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	execs, err := s.audit.ListExecutions(r.Context(), id, filter)
	if err != nil {
		logger.Error("error listing executions", zap.String("flowId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing executions")
		return
	}
	if execs == nil {
		execs = []*model.Execution{}
	}
	respondWithJSON(w, http.StatusOK, execs)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.events.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "execution does not exist")
			return
		}
		logger.Error("error getting execution", zap.String("executionId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting execution")
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}

func (s *Server) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entries, err := s.audit.Entries(r.Context(), id)
	if err != nil {
		logger.Error("error reading audit trail", zap.String("executionId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error reading audit trail")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// HandleGetFlowAudit returns what happened to events that never became an
// execution of the flow: evaluations, suppressions and overflows.
func (s *Server) HandleGetFlowAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.metadataService.GetFlow(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "flow does not exist")
			return
		}
		logger.Error("error getting flow", zap.String("flowId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error getting flow")
		return
	}
	entries, err := s.audit.FlowEntries(r.Context(), id)
	if err != nil {
		logger.Error("error reading flow audit trail", zap.String("flowId", id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error reading audit trail")
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}
