// Package peer adapts a WebRTC data channel to the endpoint's peer channel.
//
// Negotiation is not trickled: each side gathers all of its ICE candidates
// before emitting its session description, so a pairing needs exactly one
// offer and one answer.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const (
	label = "stardrop"

	// Send blocks while more than highWaterMark bytes are queued on the data
	// channel and resumes once the queue drops below lowWaterMark.
	highWaterMark = 1 << 20
	lowWaterMark  = 256 << 10

	inboxSize     = 64
	flushInterval = 20 * time.Millisecond
)

var ErrUnexpectedSignal = errors.New("unexpected handshake signal")

type Config struct {
	STUNServers []string
}

func (c Config) webrtc() webrtc.Configuration {
	if len(c.STUNServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.STUNServers}},
	}
}

// Peer is one side of an ordered, reliable WebRTC data channel.
type Peer struct {
	pc        *webrtc.PeerConnection
	initiator bool
	logger    *zap.Logger

	mu sync.Mutex
	dc *webrtc.DataChannel

	signals  chan json.RawMessage
	inbox    chan conn.Message
	drained  chan struct{}
	opened   chan struct{}
	openOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a peer. The initiator creates the data channel and starts
// producing its offer right away.
func New(cfg Config, initiator bool, logger *zap.Logger) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg.webrtc())
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	p := &Peer{
		pc:        pc,
		initiator: initiator,
		logger:    logger,
		signals:   make(chan json.RawMessage, 2),
		inbox:     make(chan conn.Message, inboxSize),
		drained:   make(chan struct{}, 1),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Debug("peer connection state changed", zap.String("state", s.String()))
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			go p.destroy()
		}
	})

	if !initiator {
		pc.OnDataChannel(p.attach)
		return p, nil
	}

	ordered := true
	dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}
	p.attach(dc)
	go func() {
		if err := p.offer(); err != nil {
			p.logger.Error("creating offer", zap.Error(err))
			p.destroy()
		}
	}()
	return p, nil
}

func (p *Peer) attach(dc *webrtc.DataChannel) {
	p.mu.Lock()
	if p.dc != nil {
		p.mu.Unlock()
		p.logger.Warn("ignoring additional data channel", zap.String("label", dc.Label()))
		return
	}
	p.dc = dc
	p.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(lowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case p.drained <- struct{}{}:
		default:
		}
	})
	dc.OnOpen(func() {
		p.logger.Debug("data channel open", zap.String("label", dc.Label()))
		p.openOnce.Do(func() { close(p.opened) })
	})
	dc.OnClose(func() {
		p.logger.Debug("data channel closed", zap.String("label", dc.Label()))
		go p.destroy()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.inbox <- conn.Message{Text: msg.IsString, Data: msg.Data}:
		case <-p.done:
		}
	})
}

func (p *Peer) offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	return p.describe(context.Background(), offer)
}

// describe sets the local description and emits it once candidate gathering is complete.
func (p *Peer) describe(ctx context.Context, sd webrtc.SessionDescription) error {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(sd); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
	case <-p.done:
		return conn.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	b, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return err
	}
	select {
	case p.signals <- b:
		return nil
	case <-p.done:
		return conn.ErrClosed
	}
}

// Signals yields the local session description once it is complete.
func (p *Peer) Signals() <-chan json.RawMessage {
	return p.signals
}

// Apply consumes the remote session description. The answering side replies
// with its own description on Signals.
func (p *Peer) Apply(ctx context.Context, sig json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(sig, &sd); err != nil {
		return fmt.Errorf("decoding session description: %w", err)
	}
	switch {
	case p.initiator && sd.Type == webrtc.SDPTypeAnswer:
		return p.pc.SetRemoteDescription(sd)
	case !p.initiator && sd.Type == webrtc.SDPTypeOffer:
		if err := p.pc.SetRemoteDescription(sd); err != nil {
			return fmt.Errorf("setting remote description: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("creating answer: %w", err)
		}
		return p.describe(ctx, answer)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedSignal, sd.Type)
	}
}

func (p *Peer) Opened() <-chan struct{} {
	return p.opened
}

func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Send writes one message, waiting for the channel to open and for queued
// data to drain below the high water mark.
func (p *Peer) Send(ctx context.Context, msg conn.Message) error {
	select {
	case <-p.opened:
	case <-p.done:
		return conn.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	dc := p.channel()
	for dc.BufferedAmount() > highWaterMark {
		select {
		case <-p.drained:
		case <-p.done:
			return conn.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var err error
	if msg.Text {
		err = dc.SendText(string(msg.Data))
	} else {
		err = dc.Send(msg.Data)
	}
	if err != nil {
		select {
		case <-p.done:
			return conn.ErrClosed
		default:
			return fmt.Errorf("sending on data channel: %w", err)
		}
	}
	return nil
}

// Receive returns the next message. Messages that arrived before the
// channel was destroyed are still returned.
func (p *Peer) Receive(ctx context.Context) (conn.Message, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.done:
		select {
		case msg := <-p.inbox:
			return msg, nil
		default:
			return conn.Message{}, conn.ErrClosed
		}
	case <-ctx.Done():
		return conn.Message{}, ctx.Err()
	}
}

// Flush waits until every message sent has left the data channel buffer.
func (p *Peer) Flush(ctx context.Context) error {
	dc := p.channel()
	if dc == nil {
		return nil
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for dc.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-p.done:
			return conn.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Peer) Close() error {
	return p.destroy()
}

func (p *Peer) channel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

func (p *Peer) destroy() error {
	var err error
	p.doneOnce.Do(func() {
		close(p.done)
		err = p.pc.Close()
	})
	return err
}
