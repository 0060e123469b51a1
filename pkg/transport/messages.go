// Package transport defines the messages exchanged between a PCoIP client
// and the broker, together with the XML codec for both directions.
package transport

import "fmt"

// Default values used on the resource list wire format.
const (
	ResourceTypeDesktop  = "DESKTOP"
	SessionTypeVDI       = "VDI"
	ResourceStateUnknown = "UNKNOWN"
	ProtocolPCoIP        = "PCOIP"
)

// Message is implemented by every request and response that crosses the
// broker wire. The set of implementations is closed; consumers discriminate
// with a type switch.
type Message interface {
	isMessage()
}

// Hello is the first request a PCoIP client sends. A client probing for
// broker capabilities identifies itself with the product name
// "QueryBrokerClient"; the real handshake starts with its second Hello.
type Hello struct {
	ClientHostname    string
	ClientProductName string
}

func (Hello) isMessage() {}

// Authenticate carries the user credentials for password authentication.
type Authenticate struct {
	Username string
	Password string
	Domain   string
}

func (Authenticate) isMessage() {}

// String renders the request with the credentials redacted so the message
// can be logged safely.
func (a Authenticate) String() string {
	return fmt.Sprintf("Authenticate{username: <redacted>, password: <redacted>, domain: %q}", a.Domain)
}

// GetResourceList asks the broker for the machines the user may connect to.
type GetResourceList struct{}

func (GetResourceList) isMessage() {}

// AllocateResource asks the broker to allocate a session on the resource the
// user picked from the list.
type AllocateResource struct {
	ResourceID string
}

func (AllocateResource) isMessage() {}

// Bye ends the handshake.
type Bye struct{}

func (Bye) isMessage() {}

// BadMessage represents a request that could not be decoded into any of the
// known request variants. Reason says what was wrong with it.
type BadMessage struct {
	Reason string
}

func (BadMessage) isMessage() {}

// HelloResponse tells the client about the broker and the supported
// authentication methods and domains.
type HelloResponse struct {
	Hostname              string
	ProductName           string
	ProductVersion        string
	Platform              string
	Locale                string
	IPAddress             string
	AuthenticationMethods []string
	Domains               []string
}

func (HelloResponse) isMessage() {}

// NewHelloResponse returns a HelloResponse with the broker defaults filled in.
func NewHelloResponse(hostname, productVersion string, domains []string) HelloResponse {
	return HelloResponse{
		Hostname:              hostname,
		ProductName:           "Interstate Love Song",
		ProductVersion:        productVersion,
		Platform:              "linux",
		Locale:                "en_US",
		IPAddress:             "N/A",
		AuthenticationMethods: []string{"AUTHENTICATE_VIA_PASSWORD"},
		Domains:               domains,
	}
}

// AuthenticateSuccess is the answer to a successful Authenticate.
type AuthenticateSuccess struct{}

func (AuthenticateSuccess) isMessage() {}

// AuthenticateFailed is the answer to a failed Authenticate.
type AuthenticateFailed struct{}

func (AuthenticateFailed) isMessage() {}

// TeradiciResource is the wire-facing projection of a resource in the list
// presented to the client.
type TeradiciResource struct {
	ResourceName  string
	ResourceID    string
	ResourceType  string
	SessionType   string
	ResourceState string
	Protocol      string
}

// NewTeradiciResource returns a TeradiciResource with the fixed wire defaults.
func NewTeradiciResource(name, id string) TeradiciResource {
	return TeradiciResource{
		ResourceName:  name,
		ResourceID:    id,
		ResourceType:  ResourceTypeDesktop,
		SessionType:   SessionTypeVDI,
		ResourceState: ResourceStateUnknown,
		Protocol:      ProtocolPCoIP,
	}
}

// GetResourceListResponse enumerates the resources the user is entitled to,
// in the order the mapper produced them.
type GetResourceListResponse struct {
	Resources []TeradiciResource
}

func (GetResourceListResponse) isMessage() {}

// AllocateSuccess carries the transport coordinates the client needs to
// launch the PCoIP stream.
type AllocateSuccess struct {
	IPAddress  string
	Hostname   string
	SNI        string
	Port       int
	SessionID  string
	ConnectTag string
	ResourceID string
	Protocol   string
}

func (AllocateSuccess) isMessage() {}

// AllocateFailed is the answer to an AllocateResource that could not be
// satisfied. ResultID is the wire failure code.
type AllocateFailed struct {
	ResultID string
}

func (AllocateFailed) isMessage() {}

// ByeResponse acknowledges a Bye.
type ByeResponse struct{}

func (ByeResponse) isMessage() {}
