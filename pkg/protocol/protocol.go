// Package protocol implements the broker protocol state machine. The
// handler is stateless; all per-client state lives in the Session threaded
// through it by the caller.
package protocol

import (
	"context"
	"os"

	"github.com/interstate-love-song/broker/pkg/agent"
	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/mapping"
	"github.com/interstate-love-song/broker/pkg/transport"
)

// ProbeProductName is the product name PCoIP clients send in a preliminary
// Hello to distinguish brokers from workstations. A probe must not start a
// session.
const ProbeProductName = "QueryBrokerClient"

// failedAnotherSessionStartedWire is the wire token for an allocation that
// failed because another session is running. The missing 'S' is a known
// Teradici-side spelling and must be produced exactly.
const failedAnotherSessionStartedWire = "FAILED_ANOTHER_SESION_STARTED"

// State identifies the request the protocol expects next.
type State string

// Protocol states.
const (
	StateWaitingForHello            State = "WAITING_FOR_HELLO"
	StateWaitingForAuthenticate     State = "WAITING_FOR_AUTHENTICATE"
	StateWaitingForGetResourceList  State = "WAITING_FOR_GETRESOURCELIST"
	StateWaitingForAllocateResource State = "WAITING_FOR_ALLOCATERESOURCE"
	StateWaitingForBye              State = "WAITING_FOR_BYE"
)

// Session is the per-client protocol state, owned by the session store.
// Credentials are held only for the agent call at allocate time and are
// cleared again on authentication failure.
type Session struct {
	State      State                `json:"state"`
	Username   string               `json:"username"`
	Password   string               `json:"password"`
	Domain     string               `json:"domain"`
	ClientName string               `json:"client_name"`
	Resources  mapping.ResourceList `json:"resources"`
}

// Handler runs the protocol. It is a pure function of (request, session)
// modulo the mapper and the allocator, and safe for concurrent use.
type Handler struct {
	mapper    mapping.Mapper
	allocator agent.Allocator
	hostname  string
	version   string
}

// NewHandler creates a Handler. If the mapper implements agent.Allocator,
// its allocation override is preferred over the given allocator. The
// broker's OS hostname is resolved once, here.
func NewHandler(mapper mapping.Mapper, allocator agent.Allocator, version string) *Handler {
	if override, ok := mapper.(agent.Allocator); ok {
		allocator = override
	}

	hostname, err := os.Hostname()
	if err != nil {
		logger.Warnw("could not resolve the broker hostname", "error", err)
		hostname = "unknown"
	}

	return &Handler{
		mapper:    mapper,
		allocator: allocator,
		hostname:  hostname,
		version:   version,
	}
}

// Handle processes one request against the current session and returns the
// updated session and the response.
//
// A nil returned session means the stored session must be destroyed. A nil
// response together with a nil session is a protocol violation (the client
// sent a request the current state does not accept); a nil response with a
// live session is a bug in the caller's wiring.
func (h *Handler) Handle(ctx context.Context, msg transport.Message, sess *Session) (*Session, transport.Message) {
	// Bye terminates the handshake from any state.
	if _, ok := msg.(transport.Bye); ok {
		return nil, transport.ByeResponse{}
	}

	state := StateWaitingForHello
	if sess != nil {
		state = sess.State
	}

	switch m := msg.(type) {
	case transport.Hello:
		// A probe gets an answer from any state but never a session, so the
		// response carries no cookie and a live handshake is not resumed.
		if m.ClientProductName == ProbeProductName {
			return nil, transport.NewHelloResponse(h.hostname, h.version, h.mapper.Domains())
		}
		if state != StateWaitingForHello {
			return h.violation(m, state)
		}
		return h.hello(m)
	case transport.Authenticate:
		if state != StateWaitingForAuthenticate || sess == nil {
			return h.violation(m, state)
		}
		return h.authenticate(ctx, m, sess)
	case transport.GetResourceList:
		if state != StateWaitingForGetResourceList || sess == nil {
			return h.violation(m, state)
		}
		return h.getResourceList(sess)
	case transport.AllocateResource:
		if state != StateWaitingForAllocateResource || sess == nil {
			return h.violation(m, state)
		}
		return h.allocateResource(ctx, m, sess)
	default:
		return h.violation(msg, state)
	}
}

// violation destroys the session and answers nothing; the client will
// typically restart at Hello.
func (h *Handler) violation(msg transport.Message, state State) (*Session, transport.Message) {
	logger.Infow("unexpected request for the current state", "request", msg, "state", state)
	return nil, nil
}

func (h *Handler) hello(msg transport.Hello) (*Session, transport.Message) {
	return &Session{
		State:      StateWaitingForAuthenticate,
		ClientName: msg.ClientHostname,
	}, transport.NewHelloResponse(h.hostname, h.version, h.mapper.Domains())
}

func (h *Handler) authenticate(ctx context.Context, msg transport.Authenticate, sess *Session) (*Session, transport.Message) {
	status, resources := h.mapper.Map(ctx, mapping.Credentials{
		Username: msg.Username,
		Password: msg.Password,
		Domain:   msg.Domain,
	}, "")

	if status != mapping.StatusSuccess {
		logger.Infow("authentication failed", "mapper", h.mapper.Name(), "status", status.String())
		sess.State = StateWaitingForAuthenticate
		sess.Username = ""
		sess.Password = ""
		sess.Domain = ""
		sess.Resources = nil
		return sess, transport.AuthenticateFailed{}
	}

	sess.State = StateWaitingForGetResourceList
	sess.Username = msg.Username
	sess.Password = msg.Password
	sess.Domain = msg.Domain
	sess.Resources = resources
	return sess, transport.AuthenticateSuccess{}
}

func (h *Handler) getResourceList(sess *Session) (*Session, transport.Message) {
	resources := make([]transport.TeradiciResource, 0, len(sess.Resources))
	for _, entry := range sess.Resources {
		resources = append(resources, transport.NewTeradiciResource(entry.Resource.Name, entry.ID))
	}

	sess.State = StateWaitingForAllocateResource
	return sess, transport.GetResourceListResponse{Resources: resources}
}

func (h *Handler) allocateResource(ctx context.Context, msg transport.AllocateResource, sess *Session) (*Session, transport.Message) {
	resource, ok := sess.Resources.Get(msg.ResourceID)
	if !ok {
		logger.Infow("client asked for a resource id it was never offered", "resource_id", msg.ResourceID)
		return sess, transport.AllocateFailed{ResultID: agent.StatusFailedUserAuth.String()}
	}

	status, agentSession := h.allocator.AllocateSession(ctx, agent.AllocateRequest{
		ResourceID: msg.ResourceID,
		Hostname:   resource.Hostname,
		Username:   sess.Username,
		Password:   sess.Password,
		Domain:     sess.Domain,
		ClientName: sess.ClientName,
	})

	if status != agent.StatusSuccessful {
		logger.Infow("allocation failed", "agent", resource.Hostname, "status", status.String())
		// The session stays at WAITING_FOR_ALLOCATERESOURCE so the client
		// may pick another resource.
		return sess, transport.AllocateFailed{ResultID: allocateFailureResultID(status)}
	}

	sess.State = StateWaitingForBye
	return sess, transport.AllocateSuccess{
		IPAddress:  agentSession.IPAddress,
		Hostname:   resource.Hostname,
		SNI:        agentSession.SNI,
		Port:       agentSession.Port,
		SessionID:  agentSession.SessionID,
		ConnectTag: agentSession.SessionTag,
		ResourceID: msg.ResourceID,
		Protocol:   transport.ProtocolPCoIP,
	}
}

// allocateFailureResultID maps an allocation status to the wire failure
// code. Library failures (connection, endpoint, XML) collapse into
// FAILED_USER_AUTH, which every client version knows how to display.
func allocateFailureResultID(status agent.Status) string {
	if status == agent.StatusFailedAnotherSessionStarted {
		return failedAnotherSessionStartedWire
	}
	return agent.StatusFailedUserAuth.String()
}
