// transfer.go specifies the frames exchanged over the peer channel during a file transfer.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxChunkSize is the largest chunk a sender puts into a single binary frame.
const MaxChunkSize = 16 * 1024

// Kind discriminates the frame variants of the transfer protocol.
type Kind int

const (
	Metadata Kind = iota // Sender announces name, size and mime type, always first
	Chunk                // Raw slice of the file, in send order
	Complete             // Sender announces that every chunk has been sent
)

var ErrMalformedFrame = errors.New("malformed frame")

// FileInfo describes the file being transferred.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Frame is a single message of the transfer protocol. Info is only set for
// Metadata frames and Data only for Chunk frames.
type Frame struct {
	Kind Kind
	Info FileInfo
	Data []byte
}

func MetadataFrame(info FileInfo) Frame {
	return Frame{Kind: Metadata, Info: info}
}

func ChunkFrame(b []byte) Frame {
	return Frame{Kind: Chunk, Data: b}
}

func CompleteFrame() Frame {
	return Frame{Kind: Complete}
}

const (
	typeMetadata = "metadata"
	typeComplete = "complete"
)

type header struct {
	Type string `json:"type"`
}

type metadataMsg struct {
	Type string `json:"type"`
	FileInfo
}

// Encode serializes the frame. Metadata and Complete frames are textual JSON
// messages, Chunk frames are returned as-is and must travel as binary messages.
func Encode(f Frame) (text bool, b []byte, err error) {
	switch f.Kind {
	case Metadata:
		b, err = json.Marshal(metadataMsg{Type: typeMetadata, FileInfo: f.Info})
		return true, b, err
	case Complete:
		b, err = json.Marshal(header{Type: typeComplete})
		return true, b, err
	case Chunk:
		return false, f.Data, nil
	default:
		return false, nil, fmt.Errorf("encoding frame of unknown kind %d", f.Kind)
	}
}

// Decode classifies a message received from the peer channel. Binary messages
// are always chunks, textual messages must be a metadata or complete frame.
// Any other textual message yields an error wrapping ErrMalformedFrame.
func Decode(text bool, b []byte) (Frame, error) {
	if !text {
		return ChunkFrame(b), nil
	}
	var h header
	if err := json.Unmarshal(b, &h); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch h.Type {
	case typeMetadata:
		var msg metadataMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if msg.Size < 0 {
			return Frame{}, fmt.Errorf("%w: negative size %d", ErrMalformedFrame, msg.Size)
		}
		return MetadataFrame(msg.FileInfo), nil
	case typeComplete:
		return CompleteFrame(), nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, h.Type)
	}
}

// Progress returns the whole percentage of total that has been moved, clamped
// to 100. An empty transfer counts as done.
func Progress(moved, total int64) int {
	if total <= 0 {
		return 100
	}
	if moved >= total {
		return 100
	}
	return int(moved * 100 / total)
}

func (k Kind) Name() string {
	switch k {
	case Metadata:
		return "Metadata"
	case Chunk:
		return "Chunk"
	case Complete:
		return "Complete"
	default:
		return ""
	}
}
