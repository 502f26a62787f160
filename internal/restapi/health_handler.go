package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/transitboard/transitboard/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler reports whether the board has published arrivals. It returns
// 503 until the first trip-updates poll (or a restored snapshot) lands.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Board == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "board not initialized",
		})
		return
	}

	if api.Store != nil {
		if err := api.Store.DB.PingContext(r.Context()); err != nil {
			logging.LogError(api.Logger, "snapshot store ping failed", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status: "unavailable",
				Detail: "snapshot store connection failed",
			})
			return
		}
	}

	s := api.Board.Load()
	if s.TripsUpdatedAt.IsZero() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "starting",
			Detail: "waiting for the first trip updates",
		})
		return
	}

	resp := HealthResponse{Status: "ok"}
	for _, lb := range s.Lines {
		if lb.Stale {
			resp.Detail = "serving cached arrivals"
			break
		}
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
