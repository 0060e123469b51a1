package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/interstate-love-song/broker/pkg/logger"
)

// webserviceTimeout bounds the call to the mapping webservice.
const webserviceTimeout = 10 * time.Second

// WebserviceMapper authenticates against a remote webservice and uses its
// answer as the mapping table.
//
// The webservice must accept HTTP Basic authentication on
// GET {base_url}/user={username} and answer:
//
//   - 403 when the credentials are wrong;
//   - 200 with UTF-8 JSON {"hosts": [{"name": ..., "hostname": ...}, ...]}
//     when they are right.
//
// Any other status code, connection error, malformed JSON or missing field
// is treated as an internal error.
type WebserviceMapper struct {
	baseURL string
	domains []string
	client  *http.Client
}

// NewWebserviceMapper creates a WebserviceMapper for the given endpoint.
func NewWebserviceMapper(baseURL string, domains []string) *WebserviceMapper {
	return &WebserviceMapper{
		baseURL: baseURL,
		domains: domains,
		client:  &http.Client{Timeout: webserviceTimeout},
	}
}

type webserviceHost struct {
	Name     *string `json:"name"`
	Hostname *string `json:"hostname"`
}

type webservicePayload struct {
	Hosts *[]webserviceHost `json:"hosts"`
}

// Map calls the webservice with the credentials as HTTP Basic auth and
// decodes the returned host list, assigning the IDs "0", "1", ... in the
// order the webservice produced.
func (m *WebserviceMapper) Map(ctx context.Context, creds Credentials, _ string) (MapperStatus, ResourceList) {
	endpoint := fmt.Sprintf("%s/user=%s", m.baseURL, url.QueryEscape(creds.Username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.Errorw("could not build webservice request", "mapper", m.Name(), "error", err)
		return StatusInternalError, nil
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := m.client.Do(req)
	if err != nil {
		logger.Errorw("could not connect to the mapping webservice", "mapper", m.Name(), "error", err)
		return StatusInternalError, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return StatusAuthenticationFailed, nil
	case resp.StatusCode != http.StatusOK:
		logger.Errorw("unsupported status code from the mapping webservice",
			"mapper", m.Name(), "status", resp.StatusCode, "url", endpoint)
		return StatusInternalError, nil
	}

	var payload webservicePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Errorw("could not decode JSON from the mapping webservice", "mapper", m.Name(), "error", err)
		return StatusInternalError, nil
	}
	if payload.Hosts == nil {
		logger.Errorw("hosts section missing from the webservice response", "mapper", m.Name())
		return StatusInternalError, nil
	}

	resources := make([]Resource, 0, len(*payload.Hosts))
	for _, host := range *payload.Hosts {
		if host.Name == nil || host.Hostname == nil {
			logger.Errorw("host entry is missing name or hostname", "mapper", m.Name())
			return StatusInternalError, nil
		}
		resources = append(resources, Resource{Name: *host.Name, Hostname: *host.Hostname})
	}

	if len(resources) == 0 {
		return StatusNoMachine, nil
	}

	return StatusSuccess, NewResourceList(resources)
}

// Domains returns the configured authentication domains.
func (m *WebserviceMapper) Domains() []string {
	return m.domains
}

// Name identifies the mapper in logs.
func (*WebserviceMapper) Name() string {
	return "SimpleWebserviceMapper"
}
