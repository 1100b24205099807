// Package stardrop wires the broker client, the session controller and the
// WebRTC peers into a ready to use endpoint.
package stardrop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SpatiumPortae/stardrop/internal/peer"
	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/SpatiumPortae/stardrop/internal/signaling"
	"go.uber.org/zap"
)

var (
	ErrBrokerGone = errors.New("connection to broker lost")
	ErrCancelled  = errors.New("session cancelled")
)

// Endpoint is an endpoint connected to the pairing broker.
type Endpoint struct {
	client     *signaling.Client
	controller *session.Controller
	cancel     context.CancelFunc
	done       chan error
	closeOnce  sync.Once
}

// Connect dials the broker and starts serving its messages. Every controller
// update is handed to observer.
func Connect(ctx context.Context, config *Config, logger *zap.Logger, observer session.Observer) (*Endpoint, error) {
	merged := MergeConfig(defaultConfig, config)
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := signaling.Dial(ctx, merged.BrokerAddr, logger)
	if err != nil {
		return nil, err
	}
	peerConfig := peer.Config{STUNServers: merged.STUNServers}
	newPeer := func(initiator bool) (session.Peer, error) {
		p, err := peer.New(peerConfig, initiator, logger.With(zap.Bool("initiator", initiator)))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithChunkSize(merged.ChunkSize),
	}
	if observer != nil {
		opts = append(opts, session.WithObserver(observer))
	}
	if merged.ResetDelay > 0 {
		opts = append(opts, session.WithResetDelay(merged.ResetDelay))
	}
	controller := session.New(client, newPeer, opts...)

	runCtx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		client:     client,
		controller: controller,
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	go func() {
		err := client.Run(runCtx, controller)
		if err == nil || runCtx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrBrokerGone, err)
		}
		e.done <- err
	}()
	return e, nil
}

func (e *Endpoint) Controller() *session.Controller {
	return e.controller
}

// Done yields an error once the broker connection has ended.
func (e *Endpoint) Done() <-chan error {
	return e.done
}

// Close tears down the current session and disconnects from the broker.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.controller.Close()
		e.cancel()
		err = e.client.Close()
	})
	return err
}

// Send executes the stardrop send sequence: it joins the receiver waiting
// behind code and blocks until the file has been handed over or the session
// ends. The provided config will be merged with the default config.
func Send(ctx context.Context, code string, src session.Source, config *Config) error {
	updates, observer, stop := watch()
	e, err := Connect(ctx, config, zap.NewNop(), observer)
	if err != nil {
		return err
	}
	defer e.Close()
	defer stop()
	if err := e.controller.Send(ctx, code, src); err != nil {
		return err
	}
	_, err = wait(ctx, e, updates, nil)
	return err
}

// Receive executes the stardrop receive sequence: it requests a pairing code,
// hands it to codes and blocks until a sender has transferred its file. The
// provided config will be merged with the default config.
func Receive(ctx context.Context, codes chan<- string, config *Config) (*receiver.Artifact, error) {
	updates, observer, stop := watch()
	e, err := Connect(ctx, config, zap.NewNop(), observer)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	defer stop()
	if err := e.controller.RequestCode(ctx); err != nil {
		return nil, err
	}
	return wait(ctx, e, updates, codes)
}

// watch returns an observer that hands updates to the returned channel until stop is called.
func watch() (<-chan session.Update, session.Observer, func()) {
	updates := make(chan session.Update)
	done := make(chan struct{})
	var once sync.Once
	observer := func(u session.Update) {
		select {
		case updates <- u:
		case <-done:
		}
	}
	return updates, observer, func() { once.Do(func() { close(done) }) }
}

// wait follows the updates of a single session until it ends.
func wait(ctx context.Context, e *Endpoint, updates <-chan session.Update, codes chan<- string) (*receiver.Artifact, error) {
	active, complete, announced := false, false, false
	for {
		select {
		case u := <-updates:
			switch u.State {
			case session.Complete:
				if u.Role == session.Receiver {
					return u.Artifact, nil
				}
				// The sender keeps its channel open until the receiver
				// hangs up or the reset delay expires.
				complete = true
			case session.Failed:
				return nil, u.Err
			case session.Idle:
				switch {
				case complete:
					return nil, nil
				case !active:
					continue
				case u.Err != nil:
					return nil, u.Err
				}
				return nil, ErrCancelled
			default:
				active = true
				if codes != nil && u.Code != "" && !announced {
					announced = true
					select {
					case codes <- u.Code:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
			}
		case err := <-e.Done():
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
