package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/protocol"
	"github.com/interstate-love-song/broker/pkg/session"
	"github.com/interstate-love-song/broker/pkg/transport"
)

// maxRequestBody bounds the inbound XML payload; broker requests are tiny.
const maxRequestBody = 1 << 20

// BrokerRoutes serves the broker endpoint where all communication with a
// PCoIP client begins.
type BrokerRoutes struct {
	handler  *protocol.Handler
	sessions *session.Manager
	version  string
}

// BrokerRouter creates the router for the broker endpoint.
func BrokerRouter(handler *protocol.Handler, sessions *session.Manager, version string) http.Handler {
	routes := &BrokerRoutes{
		handler:  handler,
		sessions: sessions,
		version:  version,
	}

	r := chi.NewRouter()
	r.Post("/", routes.postBroker)
	r.Get("/", routes.getLanding)
	return r
}

// postBroker receives an XML payload, decodes it and runs it through the
// protocol. This endpoint is stateful: the session store keeps the protocol
// session between requests.
func (b *BrokerRoutes) postBroker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "Could not read request body.", http.StatusBadRequest)
		return
	}

	msg, err := transport.Deserialize(body)
	if err != nil {
		// The session is left untouched; only well-formed XML reaches the
		// protocol.
		logger.Debugw("rejecting malformed request", "error", err)
		http.Error(w, "Malformed XML.", http.StatusBadRequest)
		return
	}
	requestsTotal.WithLabelValues(messageLabel(msg)).Inc()

	setter := newSessionSetter(b.sessions, w, r)

	unlock := b.sessions.Lock(setter.ID())
	defer unlock()

	current, err := setter.Get(ctx)
	if err != nil {
		logger.Errorw("failed to load session", "error", err)
		http.Error(w, "Session store failure.", http.StatusInternalServerError)
		return
	}

	newSession, response := b.handler.Handle(ctx, msg, current)

	if err := setter.Set(ctx, newSession); err != nil {
		logger.Errorw("failed to persist session", "error", err)
		http.Error(w, "Session store failure.", http.StatusInternalServerError)
		return
	}

	if response == nil {
		if newSession != nil {
			// The protocol never keeps a session alive without answering;
			// reaching this branch means broken wiring.
			logger.Errorw("protocol returned a session but no response")
			http.Error(w, "Internal protocol error.", http.StatusInternalServerError)
			return
		}
		// Protocol violation: answer nothing and let the client restart at
		// Hello.
		w.WriteHeader(http.StatusOK)
		return
	}
	responsesTotal.WithLabelValues(messageLabel(response)).Inc()

	payload, err := transport.Serialize(response)
	if err != nil {
		logger.Errorw("failed to serialize response", "error", err)
		http.Error(w, "Internal protocol error.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	if _, err := w.Write(payload); err != nil {
		// The transport closed mid-response; the new state is already
		// committed and the client will re-handshake.
		logger.Debugw("failed to write response", "error", err)
		return
	}

	// Flush so the body goes out chunked. PCoIP clients reject
	// Content-Length framed responses.
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// getLanding serves a minimal landing page showing the broker version, as
// an operational convenience.
func (b *BrokerRoutes) getLanding(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Interstate Love Song</title></head>
<body>
  <h1>Interstate Love Song</h1>
  <p>PCoIP connection broker, version %s.</p>
</body>
</html>
`, b.version)
}
