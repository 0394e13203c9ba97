package rest

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/matcher"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

// HandleEvent ingests one event. With sync=true the event is matched and
// admitted before the response, which then lists the admission decisions.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event body")
		return
	}
	defer r.Body.Close()

	if r.URL.Query().Get("sync") == "true" {
		admissions, err := s.events.Process(r.Context(), ev)
		if err != nil {
			var merr *matcher.MatchError
			if errors.As(err, &merr) {
				respondWithError(w, http.StatusBadRequest, merr.Error())
				return
			}
			logger.Error("error processing event", zap.String("subject", ev.Subject), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "error processing event")
			return
		}
		respondOK(w, map[string]any{"admissions": admissions})
		return
	}
	if err := matcher.ValidateEvent(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.events.Publish(ev) {
		respondWithError(w, http.StatusServiceUnavailable, "event queue is full")
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
