package netatmo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/joshp123/intercomd/internal/core"
)

const (
	doorsEndpoint    = "/netatmo/doors"
	openDoorEndpoint = "/netatmo/doors/open"
)

var _ core.HTTPRegistrant = (*Plugin)(nil)

// doorView is a discovered door plus its momentary switch state.
type doorView struct {
	DoorModule
	On bool `json:"on"`
}

func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc(doorsEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if p.client == nil {
			http.Error(w, "netatmo unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		doors, err := p.Doors(ctx)
		if err != nil {
			writeError(w, err)
			return
		}

		views := make([]doorView, 0, len(doors))
		for _, door := range doors {
			views = append(views, doorView{DoorModule: door, On: p.board.IsOn(door.ModuleID)})
		}
		writeJSON(w, map[string]any{"doors": views})
	})

	mux.HandleFunc(openDoorEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if p.client == nil {
			http.Error(w, "netatmo unavailable", http.StatusServiceUnavailable)
			return
		}

		moduleID := r.URL.Query().Get("module_id")
		if moduleID == "" {
			http.Error(w, "module_id is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if err := p.Open(ctx, moduleID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"module_id": moduleID, "status": "opened"})
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		http.Error(w, apiErr.Error(), http.StatusBadGateway)
		return
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		http.Error(w, transportErr.Error(), http.StatusGatewayTimeout)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
