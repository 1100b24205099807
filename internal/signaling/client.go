// Package signaling is the endpoint side of the pairing broker protocol.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/protocol/signal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Handler receives the messages the broker pushes to an endpoint.
type Handler interface {
	HandleCodeGenerated(code string)
	HandlePeerConnected(id string)
	HandleSignal(ctx context.Context, from string, sig json.RawMessage)
	HandleInvalidCode()
	HandleCodeUnavailable()
}

// Client is a connection to the pairing broker.
type Client struct {
	rc     conn.Rendezvous
	logger *zap.Logger
}

// Dial connects to the broker at addr.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Client, error) {
	ws, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/signal", addr), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ws.SetReadLimit(conn.ReadLimit)
	return NewClient(&conn.WS{Conn: ws}, logger), nil
}

// NewClient wraps an established broker connection.
func NewClient(c conn.Conn, logger *zap.Logger) *Client {
	return &Client{rc: conn.Rendezvous{Conn: c}, logger: logger}
}

func (c *Client) GenerateCode(ctx context.Context) error {
	return c.rc.WriteMsg(ctx, signal.Msg{Type: signal.EndpointToBrokerGenerateCode})
}

func (c *Client) JoinWithCode(ctx context.Context, code string, sig json.RawMessage) error {
	return c.rc.WriteMsg(ctx, signal.Msg{
		Type:    signal.EndpointToBrokerJoinWithCode,
		Payload: signal.Payload{Code: code, Signal: sig},
	})
}

func (c *Client) Signal(ctx context.Context, to string, sig json.RawMessage) error {
	return c.rc.WriteMsg(ctx, signal.Msg{
		Type:    signal.EndpointToBrokerSignal,
		Payload: signal.Payload{To: to, Signal: sig},
	})
}

// ReleaseCode gives up code. An empty code gives up every code of this connection.
func (c *Client) ReleaseCode(ctx context.Context, code string) error {
	return c.rc.WriteMsg(ctx, signal.Msg{
		Type:    signal.EndpointToBrokerReleaseCode,
		Payload: signal.Payload{Code: code},
	})
}

// Run reads broker messages and hands them to h until the connection or ctx
// ends. An orderly close by the broker returns nil.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.rc.ReadMsg(ctx,
			signal.BrokerToEndpointCodeGenerated,
			signal.BrokerToEndpointPeerConnected,
			signal.BrokerToEndpointSignal,
			signal.BrokerToEndpointInvalidCode,
			signal.BrokerToEndpointCodeUnavailable,
		)
		var sigErr signal.Error
		switch {
		case err == nil:
		case errors.As(err, &sigErr):
			c.logger.Warn("ignoring unexpected broker message", zap.Error(err))
			continue
		case errors.Is(err, conn.ErrClosed):
			return nil
		default:
			return err
		}
		Route(ctx, msg, h)
	}
}

// Route hands a single broker message to h.
func Route(ctx context.Context, msg signal.Msg, h Handler) {
	switch msg.Type {
	case signal.BrokerToEndpointCodeGenerated:
		h.HandleCodeGenerated(msg.Payload.Code)
	case signal.BrokerToEndpointPeerConnected:
		h.HandlePeerConnected(msg.Payload.ID)
	case signal.BrokerToEndpointSignal:
		h.HandleSignal(ctx, msg.Payload.From, msg.Payload.Signal)
	case signal.BrokerToEndpointInvalidCode:
		h.HandleInvalidCode()
	case signal.BrokerToEndpointCodeUnavailable:
		h.HandleCodeUnavailable()
	}
}

func (c *Client) Close() error {
	return c.rc.Conn.Close()
}
