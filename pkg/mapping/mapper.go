// Package mapping defines the authentication and entitlement capability of
// the broker. A Mapper authenticates a set of credentials and returns the
// ordered list of resources the user may connect to.
package mapping

import (
	"context"
	"strconv"
)

// MapperStatus is the outcome of a Map call.
type MapperStatus int

// Mapper outcomes.
const (
	StatusAuthenticationFailed MapperStatus = iota
	StatusNoMachine
	StatusResourceUnresponsive
	StatusInternalError
	StatusSuccess
)

// String returns the name of the status for logs.
func (s MapperStatus) String() string {
	switch s {
	case StatusAuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case StatusNoMachine:
		return "NO_MACHINE"
	case StatusResourceUnresponsive:
		return "RESOURCE_UNRESPONSIVE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// Credentials carries the username and password presented by the client,
// plus the optional authentication domain.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// Resource represents a machine the user may connect to. Hostname is also
// the target of the agent allocation call. Immutable once created.
type Resource struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
}

// ResourceEntry pairs a stable resource ID with its resource. The IDs are
// the keys presented to the client so it can later reference a specific
// machine.
type ResourceEntry struct {
	ID       string   `json:"id"`
	Resource Resource `json:"resource"`
}

// ResourceList is an ordered mapping from resource ID to Resource. Order is
// preserved end-to-end to the client.
type ResourceList []ResourceEntry

// Get returns the resource with the given ID, reporting whether it exists.
func (l ResourceList) Get(id string) (Resource, bool) {
	for _, entry := range l {
		if entry.ID == id {
			return entry.Resource, true
		}
	}
	return Resource{}, false
}

// NewResourceList builds a ResourceList from resources in order, assigning
// the IDs "0", "1", ... by position.
func NewResourceList(resources []Resource) ResourceList {
	list := make(ResourceList, 0, len(resources))
	for i, res := range resources {
		list = append(list, ResourceEntry{ID: strconv.Itoa(i), Resource: res})
	}
	return list
}

// Mapper is the strategy used to authenticate a user and derive the
// resources they are entitled to.
//
// The returned list must be non-empty when the status is StatusSuccess and
// empty for every other status. previousHost is threaded through for
// mappers that want to prefer a user's earlier machine; the broker itself
// never sets it.
type Mapper interface {
	Map(ctx context.Context, creds Credentials, previousHost string) (MapperStatus, ResourceList)

	// Domains returns the ordered list of authentication domains the mapper
	// accepts, surfaced to the client in the Hello response.
	Domains() []string

	// Name identifies the mapper in logs.
	Name() string
}
