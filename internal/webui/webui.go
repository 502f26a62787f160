// Package webui serves operator pages next to the JSON API.
package webui

import (
	"net/http"

	"github.com/transitboard/transitboard/internal/app"
)

type WebUI struct {
	*app.Application
}

func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/{$}", webUI.debugIndexHandler)
}
