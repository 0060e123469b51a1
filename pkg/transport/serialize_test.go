package transport

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseResponse round-trips the serialized payload through etree and returns
// the pcoip-client root.
func parseResponse(t *testing.T, payload []byte) *etree.Element {
	t.Helper()

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(payload))

	root := doc.Root()
	require.NotNil(t, root)
	require.Equal(t, "pcoip-client", root.Tag)

	version := root.SelectAttr("version")
	require.NotNil(t, version)
	require.Equal(t, "2.1", version.Value)

	return root
}

func findText(t *testing.T, root *etree.Element, path string) string {
	t.Helper()

	el := root.FindElement(path)
	require.NotNil(t, el, "missing element %s", path)
	return el.Text()
}

func TestSerializeStartsWithXMLDeclaration(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(ByeResponse{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), `<?xml version="1.0" encoding="utf-8"?>`),
		"payload %q", payload)
}

func TestSerializeHelloResponse(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(NewHelloResponse("broker.example.com", "1.2.3", []string{"alpha", "beta"}))
	require.NoError(t, err)

	root := parseResponse(t, payload)
	assert.Equal(t, "Interstate Love Song", findText(t, root, "hello-resp/brokers-info/broker-info/product-name"))
	assert.Equal(t, "1.2.3", findText(t, root, "hello-resp/brokers-info/broker-info/product-version"))
	assert.Equal(t, "linux", findText(t, root, "hello-resp/brokers-info/broker-info/platform"))
	assert.Equal(t, "en_US", findText(t, root, "hello-resp/brokers-info/broker-info/locale"))
	assert.Equal(t, "N/A", findText(t, root, "hello-resp/brokers-info/broker-info/ip-address"))
	assert.Equal(t, "broker.example.com", findText(t, root, "hello-resp/brokers-info/broker-info/hostname"))

	assert.Equal(t, "AUTHENTICATE_VIA_PASSWORD",
		findText(t, root, "hello-resp/next-authentication/authentication-methods/method"))

	domains := root.FindElements("hello-resp/next-authentication/domains/domain")
	require.Len(t, domains, 2)
	assert.Equal(t, "alpha", domains[0].Text())
	assert.Equal(t, "beta", domains[1].Text())
}

func TestSerializeAuthenticateResponses(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(AuthenticateSuccess{})
	require.NoError(t, err)
	root := parseResponse(t, payload)
	resp := root.FindElement("authenticate-resp")
	require.NotNil(t, resp)
	assert.Equal(t, "password", resp.SelectAttrValue("method", ""))
	assert.Equal(t, "AUTH_SUCCESSFUL_AND_COMPLETE", findText(t, root, "authenticate-resp/result/result-id"))

	payload, err = Serialize(AuthenticateFailed{})
	require.NoError(t, err)
	root = parseResponse(t, payload)
	assert.Equal(t, "AUTH_FAILED_UNKNOWN_USERNAME_OR_PASSWORD",
		findText(t, root, "authenticate-resp/result/result-id"))
}

func TestSerializeGetResourceListResponse(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(GetResourceListResponse{Resources: []TeradiciResource{
		NewTeradiciResource("Kurt", "0"),
		NewTeradiciResource("Paul", "1"),
	}})
	require.NoError(t, err)

	root := parseResponse(t, payload)
	assert.Equal(t, "LIST_SUCCESSFUL", findText(t, root, "get-resource-list-resp/result/result-id"))

	resources := root.FindElements("get-resource-list-resp/resource")
	require.Len(t, resources, 2)

	first := resources[0]
	assert.Equal(t, "Kurt", first.SelectElement("resource-name").Text())
	assert.Equal(t, "0", first.SelectElement("resource-id").Text())
	assert.Equal(t, "UNKNOWN", first.SelectElement("resource-state").Text())

	resourceType := first.SelectElement("resource-type")
	require.NotNil(t, resourceType)
	assert.Equal(t, "DESKTOP", resourceType.Text())
	assert.Equal(t, "VDI", resourceType.SelectAttrValue("session-type", ""))

	protocol := first.FindElement("protocols/protocol")
	require.NotNil(t, protocol)
	assert.Equal(t, "PCOIP", protocol.Text())
	assert.Equal(t, "true", protocol.SelectAttrValue("is-default", ""))

	// Wire order follows the slice order.
	assert.Equal(t, "Paul", resources[1].SelectElement("resource-name").Text())
	assert.Equal(t, "1", resources[1].SelectElement("resource-id").Text())
}

func TestSerializeAllocateSuccess(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(AllocateSuccess{
		IPAddress:  "1.1.1.1",
		Hostname:   "kurt.godel.edu",
		SNI:        "SNI",
		Port:       60443,
		SessionID:  "1234",
		ConnectTag: "abcd",
		ResourceID: "0",
		Protocol:   ProtocolPCoIP,
	})
	require.NoError(t, err)

	root := parseResponse(t, payload)
	assert.Equal(t, "ALLOC_SUCCESSFUL", findText(t, root, "allocate-resource-resp/result/result-id"))
	assert.Equal(t, "1.1.1.1", findText(t, root, "allocate-resource-resp/target/ip-address"))
	assert.Equal(t, "kurt.godel.edu", findText(t, root, "allocate-resource-resp/target/hostname"))
	assert.Equal(t, "SNI", findText(t, root, "allocate-resource-resp/target/sni"))
	assert.Equal(t, "60443", findText(t, root, "allocate-resource-resp/target/port"))
	assert.Equal(t, "1234", findText(t, root, "allocate-resource-resp/target/session-id"))
	assert.Equal(t, "abcd", findText(t, root, "allocate-resource-resp/target/connect-tag"))
	assert.Equal(t, "0", findText(t, root, "allocate-resource-resp/resource-id"))
	assert.Equal(t, "PCOIP", findText(t, root, "allocate-resource-resp/protocol"))
}

func TestSerializeAllocateFailed(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(AllocateFailed{ResultID: "FAILED_ANOTHER_SESION_STARTED"})
	require.NoError(t, err)

	root := parseResponse(t, payload)
	assert.Equal(t, "FAILED_ANOTHER_SESION_STARTED", findText(t, root, "allocate-resource-resp/result/result-id"))
	assert.Nil(t, root.FindElement("allocate-resource-resp/target"))
}

func TestSerializeByeResponse(t *testing.T) {
	t.Parallel()

	payload, err := Serialize(ByeResponse{})
	require.NoError(t, err)

	root := parseResponse(t, payload)
	assert.NotNil(t, root.FindElement("bye-resp"))
}

func TestSerializeRejectsRequests(t *testing.T) {
	t.Parallel()

	for _, msg := range []Message{Hello{}, Authenticate{}, GetResourceList{}, AllocateResource{}, Bye{}, BadMessage{}} {
		payload, err := Serialize(msg)
		require.ErrorIs(t, err, ErrUnsupportedMessage, "message %T", msg)
		assert.Nil(t, payload)
	}
}
