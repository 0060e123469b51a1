package transport

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// Deserialize decodes an inbound XML payload into a request variant.
//
// An error is returned only when the payload is not well-formed XML; every
// structural violation (wrong root, unknown request tag, missing mandatory
// children, non-integer resource-id) yields a BadMessage with a reason so
// the protocol layer can treat it like any other request.
func Deserialize(data []byte) (Message, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("malformed XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("malformed XML: no root element")
	}

	if root.Tag != "pcoip-client" {
		return BadMessage{Reason: fmt.Sprintf("unexpected root element %q", root.Tag)}, nil
	}
	// The version attribute must be present; its value is not validated.
	if root.SelectAttr("version") == nil {
		return BadMessage{Reason: "root element is missing the version attribute"}, nil
	}

	children := root.ChildElements()
	if len(children) != 1 {
		return BadMessage{Reason: fmt.Sprintf("expected exactly one request element, got %d", len(children))}, nil
	}

	msg := children[0]
	switch msg.Tag {
	case "hello":
		return deserializeHello(msg), nil
	case "authenticate":
		return deserializeAuthenticate(msg), nil
	case "get-resource-list":
		return GetResourceList{}, nil
	case "allocate-resource":
		return deserializeAllocateResource(msg), nil
	case "bye":
		return Bye{}, nil
	default:
		return BadMessage{Reason: fmt.Sprintf("unknown request element %q", msg.Tag)}, nil
	}
}

func deserializeHello(el *etree.Element) Message {
	clientInfo := el.SelectElement("client-info")
	if clientInfo == nil {
		return BadMessage{Reason: "hello: missing client-info"}
	}

	hostname, ok := childText(clientInfo, "hostname")
	if !ok {
		return BadMessage{Reason: "hello: client-info is missing hostname"}
	}
	productName, ok := childText(clientInfo, "product-name")
	if !ok {
		return BadMessage{Reason: "hello: client-info is missing product-name"}
	}

	return Hello{ClientHostname: hostname, ClientProductName: productName}
}

func deserializeAuthenticate(el *etree.Element) Message {
	username, ok := childText(el, "username")
	if !ok {
		return BadMessage{Reason: "authenticate: missing username"}
	}
	password, ok := childText(el, "password")
	if !ok {
		return BadMessage{Reason: "authenticate: missing password"}
	}

	// The domain is optional; clients outside a Windows domain omit it.
	domain, _ := childText(el, "domain")

	return Authenticate{Username: username, Password: password, Domain: domain}
}

func deserializeAllocateResource(el *etree.Element) Message {
	resourceID, ok := childText(el, "resource-id")
	if !ok {
		return BadMessage{Reason: "allocate-resource: missing resource-id"}
	}
	if _, err := strconv.Atoi(resourceID); err != nil {
		return BadMessage{Reason: fmt.Sprintf("allocate-resource: resource-id %q is not an integer", resourceID)}
	}

	return AllocateResource{ResourceID: resourceID}
}

// childText returns the text of the named child element, reporting whether
// the child exists.
func childText(el *etree.Element, tag string) (string, bool) {
	child := el.SelectElement(tag)
	if child == nil {
		return "", false
	}
	return child.Text(), true
}
