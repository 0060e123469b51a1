package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/interstate-love-song/broker/pkg/transport"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interstate",
		Subsystem: "broker",
		Name:      "requests_total",
		Help:      "Protocol requests received, by message type.",
	}, []string{"message"})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interstate",
		Subsystem: "broker",
		Name:      "responses_total",
		Help:      "Protocol responses sent, by message type.",
	}, []string{"message"})
)

func messageLabel(msg transport.Message) string {
	switch msg.(type) {
	case transport.Hello:
		return "hello"
	case transport.Authenticate:
		return "authenticate"
	case transport.GetResourceList:
		return "get_resource_list"
	case transport.AllocateResource:
		return "allocate_resource"
	case transport.Bye:
		return "bye"
	case transport.BadMessage:
		return "bad_message"
	case transport.HelloResponse:
		return "hello_resp"
	case transport.AuthenticateSuccess:
		return "authenticate_success"
	case transport.AuthenticateFailed:
		return "authenticate_failed"
	case transport.GetResourceListResponse:
		return "get_resource_list_resp"
	case transport.AllocateSuccess:
		return "allocate_success"
	case transport.AllocateFailed:
		return "allocate_failed"
	case transport.ByeResponse:
		return "bye_resp"
	default:
		return "unknown"
	}
}
