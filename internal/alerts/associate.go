// Package alerts selects the service alerts worth showing and flags the
// configured routes they affect.
package alerts

import "github.com/transitboard/transitboard/internal/feed"

// State is the alert view for a set of configured routes. HasAlert has an
// entry for every configured route.
type State struct {
	Active   []feed.Alert    `json:"active"`
	HasAlert map[string]bool `json:"hasAlert"`
}

// For reports whether route has an active alert. Routes that were not
// configured report false.
func (s State) For(route string) bool {
	return s.HasAlert[route]
}

// Associate keeps every alert with a header or description and marks each
// configured route named by a kept alert. Alerts with neither text are
// dropped, and so are the routes they name.
func Associate(alerts []feed.Alert, routes []string) State {
	s := State{HasAlert: make(map[string]bool, len(routes))}
	for _, route := range routes {
		s.HasAlert[route] = false
	}

	for _, a := range alerts {
		if a.HeaderText == "" && a.DescriptionText == "" {
			continue
		}
		s.Active = append(s.Active, a)
		for _, route := range a.InformedRoutes {
			if _, ok := s.HasAlert[route]; ok {
				s.HasAlert[route] = true
			}
		}
	}
	return s
}

// Routes returns the configured routes flagged in s, in the order given.
func (s State) Routes(configured []string) []string {
	var out []string
	for _, route := range configured {
		if s.HasAlert[route] {
			out = append(out, route)
		}
	}
	return out
}
