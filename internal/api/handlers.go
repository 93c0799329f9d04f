package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/switchyard-hub/switchyard/internal/hub"
	"github.com/switchyard-hub/switchyard/internal/state"
)

// ToggleRequest is the body of POST /api/v1/toggle.
type ToggleRequest struct {
	SwitchID string `json:"switchId"`
	Value    bool   `json:"value"`
}

// ToggleResponse confirms an applied toggle with the resulting document.
type ToggleResponse struct {
	Success bool           `json:"success"`
	State   state.Document `json:"state"`
}

// handleGetState returns the full state document.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// handleToggle applies a switch intent from the REST facade. The
// physical interlock applies; the hardware-liveness gate does not, so
// integrations can stage state while the controller reconnects.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	doc, err := s.router.Toggle(req.SwitchID, req.Value)
	switch {
	case errors.Is(err, state.ErrUnknownSwitch):
		writeBadRequest(w, "unknown switch: "+req.SwitchID)
		return
	case errors.Is(err, hub.ErrInterlocked):
		writeForbidden(w, "physical interlock engaged for "+req.SwitchID)
		return
	case err != nil:
		s.logger.Error("toggle failed", "switch", req.SwitchID, "error", err)
		writeInternalError(w, "toggle failed")
		return
	}

	writeJSON(w, http.StatusOK, ToggleResponse{Success: true, State: doc})
}
