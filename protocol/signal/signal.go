// signal.go specifies the messages exchanged between endpoints and the pairing broker.
package signal

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MsgType int

const (
	EndpointToBrokerGenerateCode MsgType = iota // Endpoint wants to receive and asks for a pairing code
	BrokerToEndpointCodeGenerated               // Broker hands out a code bound to the requesting connection
	EndpointToBrokerJoinWithCode                // Sender joins the receiver behind a code, carrying its first handshake signal
	BrokerToEndpointPeerConnected               // Broker announces the joining connection to the code owner
	BrokerToEndpointInvalidCode                 // Code did not resolve, only the requester is told
	EndpointToBrokerSignal                      // Endpoint addresses a handshake signal to another connection
	BrokerToEndpointSignal                      // Broker delivers a handshake signal tagged with its origin
	EndpointToBrokerReleaseCode                 // Endpoint gives up a code it owns, or every code when none is named
	BrokerToEndpointCodeUnavailable             // Broker could not issue a code to the requester
)

type Msg struct {
	Type    MsgType `json:"type"`
	Payload Payload `json:"payload,omitempty"`
}

// Payload carries the routing fields of a broker message. Signal is opaque to the
// broker and is forwarded byte for byte.
type Payload struct {
	Code   string          `json:"code,omitempty"`
	ID     string          `json:"id,omitempty"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

type Error struct {
	Expected []MsgType
	Got      MsgType
}

func (e Error) Error() string {
	var expectedMessageTypes []string
	for _, expectedType := range e.Expected {
		expectedMessageTypes = append(expectedMessageTypes, expectedType.Name())
	}
	oneOfExpected := strings.Join(expectedMessageTypes, ", ")
	return fmt.Sprintf("wrong message type, expected one of: (%s), got: (%s)", oneOfExpected, e.Got.Name())
}

// Name returns the logical wire name of the message type.
func (t MsgType) Name() string {
	switch t {
	case EndpointToBrokerGenerateCode:
		return "generate-code"
	case BrokerToEndpointCodeGenerated:
		return "code-generated"
	case EndpointToBrokerJoinWithCode:
		return "join-with-code"
	case BrokerToEndpointPeerConnected:
		return "peer-connected"
	case BrokerToEndpointInvalidCode:
		return "invalid-code"
	case EndpointToBrokerSignal, BrokerToEndpointSignal:
		return "signal"
	case EndpointToBrokerReleaseCode:
		return "release-code"
	case BrokerToEndpointCodeUnavailable:
		return "code-unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}
