// Package agent implements the outbound XML-over-HTTPS call that allocates
// a PCoIP session on a workstation's local agent.
package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/interstate-love-song/broker/pkg/logger"
)

// Status classifies the outcome of an allocation call. The first three are
// protocol statuses reported by the agent itself; the rest are library
// statuses for transport and decoding failures.
type Status int

// Allocation outcomes.
const (
	StatusSuccessful Status = iota
	StatusFailedUserAuth
	StatusFailedAnotherSessionStarted
	StatusConnectionError
	StatusXMLError
	StatusEndpointError
)

// String returns the name of the status for logs.
func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "SUCCESSFUL"
	case StatusFailedUserAuth:
		return "FAILED_USER_AUTH"
	case StatusFailedAnotherSessionStarted:
		return "FAILED_ANOTHER_SESSION_STARTED"
	case StatusConnectionError:
		return "CONNECTION_ERROR"
	case StatusXMLError:
		return "XML_ERROR"
	case StatusEndpointError:
		return "ENDPOINT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Session is the ephemeral result of a successful allocation. It is
// surfaced directly to the client and never stored.
type Session struct {
	IPAddress  string
	SNI        string
	Port       int
	SessionID  string
	SessionTag string
	ResourceID string
}

// AllocateRequest carries everything the agent needs to launch a session.
type AllocateRequest struct {
	ResourceID string
	Hostname   string
	Username   string
	Password   string
	Domain     string
	ClientName string
}

// Allocator obtains a session from a workstation agent. Mappers may
// implement it to proxy allocation to a different session allocator;
// otherwise the default Client is used.
type Allocator interface {
	AllocateSession(ctx context.Context, req AllocateRequest) (Status, *Session)
}

// Client defaults.
const (
	DefaultPort    = 60443
	DefaultTimeout = 10 * time.Second

	defaultClientName  = "Bobby McGee"
	defaultSessionType = "UNSPECIFIED"
)

// ClientBuilder provides a fluent interface for building agent clients.
type ClientBuilder struct {
	timeout   time.Duration
	verifyTLS bool
	port      int
}

// NewClientBuilder returns a ClientBuilder with the defaults: a 10 second
// end-to-end timeout and TLS verification disabled, because agents present
// per-host self-signed certificates.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		timeout:   DefaultTimeout,
		verifyTLS: false,
		port:      DefaultPort,
	}
}

// WithTimeout sets the end-to-end timeout for allocation calls.
func (b *ClientBuilder) WithTimeout(timeout time.Duration) *ClientBuilder {
	b.timeout = timeout
	return b
}

// WithTLSVerification enables or disables verification of the agent's
// certificate.
func (b *ClientBuilder) WithTLSVerification(verify bool) *ClientBuilder {
	b.verifyTLS = verify
	return b
}

// WithPort sets the agent port.
func (b *ClientBuilder) WithPort(port int) *ClientBuilder {
	b.port = port
	return b
}

// Build creates the configured client.
func (b *ClientBuilder) Build() *Client {
	transport := &http.Transport{
		TLSHandshakeTimeout: b.timeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !b.verifyTLS, // #nosec G402 - agents use self-signed certs, knob defaults off
		},
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   b.timeout,
		},
		port: b.port,
	}
}

// Client performs allocation calls against workstation agents. Every call
// issues an independent outbound request; the client is safe for concurrent
// use.
type Client struct {
	httpClient *http.Client
	port       int
}

// AllocateSession contacts the agent on req.Hostname and tries to acquire a
// session from it. The returned session is nil unless the status is
// StatusSuccessful.
func (c *Client) AllocateSession(ctx context.Context, req AllocateRequest) (Status, *Session) {
	body, err := buildLaunchSessionXML(req)
	if err != nil {
		logger.Errorw("could not build launch-session XML", "agent", req.Hostname, "error", err)
		return StatusXMLError, nil
	}

	endpoint := fmt.Sprintf("https://%s:%d/pcoip-agent/xml", req.Hostname, c.port)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Errorw("could not build agent request", "agent", req.Hostname, "error", err)
		return StatusConnectionError, nil
	}
	httpReq.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Infow("could not establish a connection to the agent", "agent", req.Hostname, "error", err)
		return StatusConnectionError, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Infow("agent endpoint returned a non-200 status", "agent", req.Hostname, "status", resp.StatusCode)
		return StatusEndpointError, nil
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(resp.Body); err != nil {
		logger.Infow("could not parse XML returned from the agent", "agent", req.Hostname, "error", err)
		return StatusXMLError, nil
	}

	status, session := parseLaunchSessionResponse(doc, req.ResourceID)
	if session == nil && status == StatusXMLError {
		logger.Infow("failure when deconstructing XML from the agent", "agent", req.Hostname)
	}
	return status, session
}

func buildLaunchSessionXML(req AllocateRequest) ([]byte, error) {
	clientName := req.ClientName
	if clientName == "" {
		clientName = defaultClientName
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("pcoip-agent")
	root.CreateAttr("version", "1.0")

	launch := root.CreateElement("launch-session")
	launch.CreateElement("session-type").SetText(defaultSessionType)
	launch.CreateElement("ip-address").SetText("127.0.0.1")
	launch.CreateElement("hostname").SetText(req.Hostname)

	logon := launch.CreateElement("logon")
	logon.CreateAttr("method", "windows-password")
	logon.CreateElement("username").SetText(req.Username)
	logon.CreateElement("password").SetText(req.Password)
	logon.CreateElement("domain").SetText(req.Domain)

	launch.CreateElement("client-mac")
	launch.CreateElement("client-ip")
	launch.CreateElement("client-name").SetText(clientName)
	launch.CreateElement("license-path")
	launch.CreateElement("session-log-id")

	return doc.WriteToBytes()
}

func parseLaunchSessionResponse(doc *etree.Document, resourceID string) (Status, *Session) {
	root := doc.Root()
	if root == nil {
		return StatusXMLError, nil
	}

	resultID := root.FindElement("launch-session-resp/result-id")
	if resultID == nil {
		return StatusXMLError, nil
	}

	switch strings.ToLower(resultID.Text()) {
	case "successful":
		sessionInfo := root.FindElement("launch-session-resp/session-info")
		if sessionInfo == nil {
			return StatusXMLError, nil
		}
		return parseSessionInfo(sessionInfo, resourceID)
	case "failed_user_auth":
		return StatusFailedUserAuth, nil
	case "failed_another_session_started":
		return StatusFailedAnotherSessionStarted, nil
	default:
		logger.Warnw("unknown result-id from the agent", "result_id", resultID.Text())
		return StatusXMLError, nil
	}
}

func parseSessionInfo(sessionInfo *etree.Element, resourceID string) (Status, *Session) {
	fields := make(map[string]string, 5)
	for _, tag := range []string{"ip-address", "sni", "port", "session-id", "session-tag"} {
		el := sessionInfo.SelectElement(tag)
		if el == nil {
			return StatusXMLError, nil
		}
		fields[tag] = el.Text()
	}

	port, err := strconv.Atoi(fields["port"])
	if err != nil {
		return StatusXMLError, nil
	}

	return StatusSuccessful, &Session{
		IPAddress:  fields["ip-address"],
		SNI:        fields["sni"],
		Port:       port,
		SessionID:  fields["session-id"],
		SessionTag: fields["session-tag"],
		ResourceID: resourceID,
	}
}
