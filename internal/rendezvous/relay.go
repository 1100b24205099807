package rendezvous

import (
	"encoding/json"
	"fmt"

	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"go.uber.org/zap"
)

// Peers delivers broker messages to live connections. Send reports whether
// the message was accepted for delivery.
type Peers interface {
	Send(id string, msg signal.Msg) bool
}

// Relay is the per-message dispatch logic of the broker. It resolves pairing
// codes through the Directory and forwards handshake signals by connection
// id, without inspecting them.
type Relay struct {
	directory *Directory
	peers     Peers
	logger    *zap.Logger
}

func NewRelay(directory *Directory, peers Peers, logger *zap.Logger) *Relay {
	return &Relay{directory: directory, peers: peers, logger: logger}
}

// Dispatch routes a message received from the connection from.
func (r *Relay) Dispatch(from string, msg signal.Msg) error {
	switch msg.Type {
	case signal.EndpointToBrokerGenerateCode:
		return r.GenerateCode(from)
	case signal.EndpointToBrokerJoinWithCode:
		r.JoinWithCode(from, msg.Payload.Code, msg.Payload.Signal)
	case signal.EndpointToBrokerSignal:
		r.Signal(from, msg.Payload.To, msg.Payload.Signal)
	case signal.EndpointToBrokerReleaseCode:
		r.ReleaseCode(from, msg.Payload.Code)
	default:
		return signal.Error{
			Expected: []signal.MsgType{
				signal.EndpointToBrokerGenerateCode,
				signal.EndpointToBrokerJoinWithCode,
				signal.EndpointToBrokerSignal,
				signal.EndpointToBrokerReleaseCode,
			},
			Got: msg.Type,
		}
	}
	return nil
}

// GenerateCode issues a fresh pairing code owned by from and hands it back.
// If no code can be issued from is told so.
func (r *Relay) GenerateCode(from string) error {
	c, err := r.directory.Issue(from)
	if err != nil {
		r.send(from, signal.Msg{Type: signal.BrokerToEndpointCodeUnavailable})
		return fmt.Errorf("issuing code: %w", err)
	}
	r.logger.Info("issued code", zap.String("conn_id", from), zap.Int("live_codes", r.directory.Len()))
	r.send(from, signal.Msg{
		Type:    signal.BrokerToEndpointCodeGenerated,
		Payload: signal.Payload{Code: c},
	})
	return nil
}

// JoinWithCode pairs from with the owner of code. The owner is told who
// joined and then receives the joining signal. A code that does not resolve
// is reported to from only.
func (r *Relay) JoinWithCode(from, code string, sig json.RawMessage) {
	owner, ok := r.directory.Resolve(code)
	if !ok {
		r.logger.Info("join with unknown code", zap.String("conn_id", from))
		r.send(from, signal.Msg{Type: signal.BrokerToEndpointInvalidCode})
		return
	}
	r.logger.Info("paired", zap.String("conn_id", from), zap.String("owner_id", owner))
	r.send(owner, signal.Msg{
		Type:    signal.BrokerToEndpointPeerConnected,
		Payload: signal.Payload{ID: from},
	})
	r.send(owner, signal.Msg{
		Type:    signal.BrokerToEndpointSignal,
		Payload: signal.Payload{From: from, Signal: sig},
	})
}

// Signal forwards sig to the connection to, tagged with from.
func (r *Relay) Signal(from, to string, sig json.RawMessage) {
	r.send(to, signal.Msg{
		Type:    signal.BrokerToEndpointSignal,
		Payload: signal.Payload{From: from, Signal: sig},
	})
}

// ReleaseCode drops code if from still owns it. An empty code drops every
// code owned by from.
func (r *Relay) ReleaseCode(from, code string) {
	if code == "" {
		n := r.directory.ReleaseAll(from)
		r.logger.Info("released codes", zap.String("conn_id", from), zap.Int("released", n))
		return
	}
	if !r.directory.Release(code, from) {
		r.logger.Debug("ignoring release of code not owned", zap.String("conn_id", from))
		return
	}
	r.logger.Info("released code", zap.String("conn_id", from))
}

// Disconnect purges the pairing entries of a connection that went away.
func (r *Relay) Disconnect(id string) int {
	return r.directory.ReleaseAll(id)
}

func (r *Relay) send(to string, msg signal.Msg) {
	if !r.peers.Send(to, msg) {
		r.logger.Debug("dropped message for unreachable connection",
			zap.String("target_id", to),
			zap.String("type", msg.Type.Name()))
	}
}
