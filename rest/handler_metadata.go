package rest

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/metadata"
	"github.com/mohitkumar/autoflow/model"
	"github.com/mohitkumar/autoflow/persistence"
	"go.uber.org/zap"
)

// respondWithFlowError maps authoring errors to status codes. Validation
// failures carry the full violation list.
func respondWithFlowError(w http.ResponseWriter, flowId string, err error) {
	var verr *flow.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "flow is invalid",
			"flowId":     verr.FlowId,
			"violations": verr.Violations,
		})
	case errors.Is(err, persistence.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "flow does not exist")
	case errors.Is(err, metadata.ErrFlowExists):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("error handling flow request", zap.String("flowId", flowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error handling flow request")
	}
}

func decodeFlow(r *http.Request) (*model.AutomationFlow, error) {
	defer r.Body.Close()
	var fl model.AutomationFlow
	if err := json.NewDecoder(r.Body).Decode(&fl); err != nil {
		return nil, err
	}
	return &fl, nil
}

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	fl, err := decodeFlow(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow body")
		return
	}
	created, err := s.metadataService.CreateFlow(r.Context(), fl)
	if err != nil {
		respondWithFlowError(w, fl.Id, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) HandleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fl, err := decodeFlow(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow body")
		return
	}
	fl.Id = id
	updated, err := s.metadataService.UpdateFlow(r.Context(), fl)
	if err != nil {
		respondWithFlowError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fl, err := s.metadataService.GetFlow(r.Context(), id)
	if err != nil {
		respondWithFlowError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fl)
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.metadataService.ListFlows(r.Context())
	if err != nil {
		respondWithFlowError(w, "", err)
		return
	}
	respondWithJSON(w, http.StatusOK, flows)
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteFlow(r.Context(), id); err != nil {
		respondWithFlowError(w, id, err)
		return
	}
	respondOK(w, map[string]any{"deleted": true})
}

func (s *Server) HandleEnableFlow(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *Server) HandleDisableFlow(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := mux.Vars(r)["id"]
	fl, err := s.metadataService.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		respondWithFlowError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fl)
}
