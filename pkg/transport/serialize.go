package transport

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// ErrUnsupportedMessage is returned when a message that is not an outbound
// response is passed to Serialize.
var ErrUnsupportedMessage = errors.New("message type cannot be serialized")

// Serialize renders a response variant as a complete XML document with
// declaration, ready to be written to the client.
func Serialize(msg Message) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("pcoip-client")
	root.CreateAttr("version", "2.1")

	switch m := msg.(type) {
	case HelloResponse:
		serializeHelloResponse(root, m)
	case AuthenticateSuccess:
		serializeAuthenticateResult(root, "AUTH_SUCCESSFUL_AND_COMPLETE", "Authentication successful.")
	case AuthenticateFailed:
		serializeAuthenticateResult(root, "AUTH_FAILED_UNKNOWN_USERNAME_OR_PASSWORD", "Authentication failed.")
	case GetResourceListResponse:
		serializeGetResourceListResponse(root, m)
	case AllocateSuccess:
		serializeAllocateSuccess(root, m)
	case AllocateFailed:
		serializeAllocateFailed(root, m)
	case ByeResponse:
		root.CreateElement("bye-resp")
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMessage, msg)
	}

	return doc.WriteToBytes()
}

func serializeHelloResponse(root *etree.Element, msg HelloResponse) {
	resp := root.CreateElement("hello-resp")

	brokersInfo := resp.CreateElement("brokers-info")
	brokerInfo := brokersInfo.CreateElement("broker-info")
	brokerInfo.CreateElement("product-name").SetText(msg.ProductName)
	brokerInfo.CreateElement("product-version").SetText(msg.ProductVersion)
	brokerInfo.CreateElement("platform").SetText(msg.Platform)
	brokerInfo.CreateElement("locale").SetText(msg.Locale)
	brokerInfo.CreateElement("ip-address").SetText(msg.IPAddress)
	brokerInfo.CreateElement("hostname").SetText(msg.Hostname)

	nextAuth := resp.CreateElement("next-authentication")

	methods := nextAuth.CreateElement("authentication-methods")
	for _, method := range msg.AuthenticationMethods {
		methods.CreateElement("method").SetText(method)
	}

	domains := nextAuth.CreateElement("domains")
	for _, domain := range msg.Domains {
		domains.CreateElement("domain").SetText(domain)
	}
}

func serializeAuthenticateResult(root *etree.Element, resultID, resultStr string) {
	resp := root.CreateElement("authenticate-resp")
	resp.CreateAttr("method", "password")
	createResult(resp, resultID, resultStr)
}

func serializeGetResourceListResponse(root *etree.Element, msg GetResourceListResponse) {
	resp := root.CreateElement("get-resource-list-resp")
	createResult(resp, "LIST_SUCCESSFUL", "The resource list was delivered.")

	for _, res := range msg.Resources {
		resource := resp.CreateElement("resource")
		resource.CreateElement("resource-name").SetText(res.ResourceName)
		resource.CreateElement("resource-id").SetText(res.ResourceID)

		resourceType := resource.CreateElement("resource-type")
		resourceType.CreateAttr("session-type", res.SessionType)
		resourceType.SetText(res.ResourceType)

		resource.CreateElement("resource-state").SetText(res.ResourceState)

		protocols := resource.CreateElement("protocols")
		protocol := protocols.CreateElement("protocol")
		protocol.CreateAttr("is-default", "true")
		protocol.SetText(res.Protocol)
	}
}

func serializeAllocateSuccess(root *etree.Element, msg AllocateSuccess) {
	resp := root.CreateElement("allocate-resource-resp")
	createResult(resp, "ALLOC_SUCCESSFUL", "The resource was allocated.")

	target := resp.CreateElement("target")
	target.CreateElement("ip-address").SetText(msg.IPAddress)
	target.CreateElement("hostname").SetText(msg.Hostname)
	target.CreateElement("sni").SetText(msg.SNI)
	target.CreateElement("port").SetText(strconv.Itoa(msg.Port))
	target.CreateElement("session-id").SetText(msg.SessionID)
	target.CreateElement("connect-tag").SetText(msg.ConnectTag)

	resp.CreateElement("resource-id").SetText(msg.ResourceID)
	resp.CreateElement("protocol").SetText(msg.Protocol)
}

func serializeAllocateFailed(root *etree.Element, msg AllocateFailed) {
	resp := root.CreateElement("allocate-resource-resp")
	createResult(resp, msg.ResultID, "The resource could not be allocated.")
}

func createResult(parent *etree.Element, resultID, resultStr string) {
	result := parent.CreateElement("result")
	result.CreateElement("result-id").SetText(resultID)
	result.CreateElement("result-str").SetText(resultStr)
}
