package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/transitboard/transitboard/internal/logging"
)

// Response is the envelope of every API body.
type Response struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Data        any    `json:"data,omitempty"`
}

func (api *RestAPI) newResponse(code int, text string, data any) Response {
	return Response{
		Code:        code,
		CurrentTime: api.Clock.Now().UnixMilli(),
		Text:        text,
		Data:        data,
	}
}

func (api *RestAPI) sendData(w http.ResponseWriter, r *http.Request, data any) {
	api.sendResponse(w, r, http.StatusOK, api.newResponse(http.StatusOK, "OK", data))
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, code int, response Response) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err,
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	api.sendResponse(w, r, code, api.newResponse(code, message, nil))
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}
