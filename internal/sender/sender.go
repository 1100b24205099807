// Package sender streams a file over a peer channel as a metadata frame, a
// sequence of binary chunks and a completion frame.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"go.uber.org/zap"
)

type State int32

const (
	Idle State = iota
	SendingMetadata
	SendingChunks
	Complete
)

// ErrShortRead is returned when the source ends before the size announced in the metadata.
var ErrShortRead = errors.New("source ended before the announced size")

// Encoder sends one file at a time. It holds a single chunk buffer and only
// reads the next chunk once the previous one has been handed to the channel.
type Encoder struct {
	chunkSize int
	progress  func(moved int64, percent int)
	logger    *zap.Logger
	state     atomic.Int32
}

type Option func(*Encoder)

// WithChunkSize sets the size of the chunks. Values outside (0, transfer.MaxChunkSize] are clamped.
func WithChunkSize(n int) Option {
	return func(e *Encoder) {
		switch {
		case n <= 0, n > transfer.MaxChunkSize:
			e.chunkSize = transfer.MaxChunkSize
		default:
			e.chunkSize = n
		}
	}
}

// WithProgress registers a function called after every chunk and on completion.
func WithProgress(fn func(moved int64, percent int)) Option {
	return func(e *Encoder) {
		e.progress = fn
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Encoder) {
		e.logger = logger
	}
}

func New(opts ...Option) *Encoder {
	e := &Encoder{
		chunkSize: transfer.MaxChunkSize,
		progress:  func(int64, int) {},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encoder) State() State {
	return State(e.state.Load())
}

// Send transfers info.Size bytes read from src. The offset advances by the
// number of bytes actually read, so the final chunk may be shorter than the
// chunk size. A zero byte file produces a metadata and a completion frame only.
func (e *Encoder) Send(ctx context.Context, tc conn.Transfer, src io.Reader, info transfer.FileInfo) error {
	e.setState(SendingMetadata)
	if err := tc.WriteFrame(ctx, transfer.MetadataFrame(info)); err != nil {
		return fmt.Errorf("sending metadata: %w", err)
	}
	e.logger.Debug("sent metadata",
		zap.String("name", info.Name),
		zap.Int64("size", info.Size),
		zap.String("mime_type", info.MimeType))

	e.setState(SendingChunks)
	buf := make([]byte, e.chunkSize)
	var offset int64
	for offset < info.Size {
		next := buf
		if remaining := info.Size - offset; remaining < int64(len(buf)) {
			next = buf[:remaining]
		}
		n, err := io.ReadFull(src, next)
		if n > 0 {
			if werr := tc.WriteFrame(ctx, transfer.ChunkFrame(next[:n])); werr != nil {
				return fmt.Errorf("sending chunk at offset %d: %w", offset, werr)
			}
			offset += int64(n)
			e.progress(offset, transfer.Progress(offset, info.Size))
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, offset, info.Size)
		case err != nil:
			return fmt.Errorf("reading chunk at offset %d: %w", offset, err)
		}
	}

	if err := tc.WriteFrame(ctx, transfer.CompleteFrame()); err != nil {
		return fmt.Errorf("sending completion: %w", err)
	}
	e.setState(Complete)
	if info.Size == 0 {
		e.progress(0, 100)
	}
	e.logger.Debug("sent completion", zap.Int64("bytes", offset))
	return nil
}

func (e *Encoder) setState(s State) {
	e.state.Store(int32(s))
}
