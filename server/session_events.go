package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-auth-session/gate"
	"github.com/rs/zerolog/log"
	"github.com/starfederation/datastar-go/datastar"
)

// decisionFeed keeps only the latest decision. The navigator reports from the
// store's notification goroutine, which must never block on a slow client.
type decisionFeed struct {
	mu     sync.Mutex
	latest gate.Decision
	ready  chan struct{}
}

func newDecisionFeed() *decisionFeed {
	return &decisionFeed{ready: make(chan struct{}, 1)}
}

func (f *decisionFeed) push(d gate.Decision) {
	f.mu.Lock()
	f.latest = d
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *decisionFeed) next() gate.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

// SessionEventsHandler streams the gate's decision for the page at ?path=
// over server-sent events. ?rendered= says what the page currently shows
// (wait or render). The stream ends with a browser redirect as soon as the
// page no longer matches the session: the loading page reloads once the
// session is known and any page moves away when the session makes it
// inaccessible.
func (s *Server) SessionEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			path = RouteHome
		}
		if !isLocalPath(path) {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		rendered := gate.OutcomeRender
		if r.URL.Query().Get("rendered") == gate.OutcomeWait.String() {
			rendered = gate.OutcomeWait
		}

		feed := newDecisionFeed()
		nav := s.authFrom(r).Navigator(path, feed.push)
		defer nav.Close()

		sse := datastar.NewSSE(w, r)

		// send reports whether the stream is finished
		send := func(d gate.Decision) bool {
			logDecision(path, d)
			signals, err := json.Marshal(map[string]string{
				"outcome":  d.Action(),
				"location": d.Location,
			})
			if err != nil {
				logError(r, "failed to encode decision", err)
				return true
			}
			if err := sse.PatchSignals(signals); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("Session events client went away")
				return true
			}

			var location string
			switch {
			case d.Outcome == gate.OutcomeRedirect:
				location = d.Location
			case d.Outcome == gate.OutcomeRender && rendered == gate.OutcomeWait:
				location = path
			default:
				return false
			}
			if err := sse.Redirect(location); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("Failed to send redirect")
			}
			return true
		}

		if send(nav.Current()) {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case <-feed.ready:
				if send(feed.next()) {
					return
				}
			}
		}
	}
}
