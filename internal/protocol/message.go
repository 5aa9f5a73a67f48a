package protocol

import "github.com/google/uuid"

type FrameKind uint16

const (
	FrameChat      FrameKind = 0x0001
	FrameFileOffer FrameKind = 0x0010
	FrameFileChunk FrameKind = 0x0011
)

func (k FrameKind) String() string {
	switch k {
	case FrameChat:
		return "CHAT"
	case FrameFileOffer:
		return "FILE_OFFER"
	case FrameFileChunk:
		return "FILE_CHUNK"
	default:
		return "UNKNOWN"
	}
}

// Frame is one unit multiplexed over the single data channel. Chat text
// and file chunks share the channel, so every payload is wrapped in a
// typed frame.
type Frame interface {
	Kind() FrameKind
}

type ChatFrame struct {
	Text string
}

func (ChatFrame) Kind() FrameKind { return FrameChat }

// FileOfferFrame announces an incoming transfer so the receiver can
// show the name and size before the chunks land.
type FileOfferFrame struct {
	TransferID  uuid.UUID
	Name        string
	Size        uint64
	TotalChunks uint32
}

func (FileOfferFrame) Kind() FrameKind { return FrameFileOffer }

type FileChunkFrame struct {
	TransferID uuid.UUID
	Index      uint32
	Total      uint32
	Data       []byte
}

func (FileChunkFrame) Kind() FrameKind { return FrameFileChunk }
