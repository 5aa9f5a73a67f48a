// chunker splits large payloads into bounded chunks for the data
// channel and reassembles them on the far side. The channel gives no
// framing and no ordering promise for a transfer as a whole, so
// reassembly indexes chunks explicitly and tolerates any arrival order.
package chunker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultChunkSize is the payload size per chunk. It must stay below
// the transport's maximum message size; 16 KiB is comfortably under the
// 64 KiB SCTP message limit and leaves room for the frame envelope.
const DefaultChunkSize = 16 * 1024

// Chunk is one piece of a transfer. Index is zero-based; Total is the
// same on every chunk of a transfer.
type Chunk struct {
	TransferID uuid.UUID
	Index      uint32
	Total      uint32
	Data       []byte
}

// Split cuts payload into chunks of at most maxChunkSize bytes under a
// fresh transfer id. An empty payload yields a single empty chunk so
// the receiver still learns the transfer happened.
func Split(payload []byte, maxChunkSize int) ([]Chunk, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", maxChunkSize)
	}

	id := uuid.New()
	total := (len(payload) + maxChunkSize - 1) / maxChunkSize
	if total == 0 {
		total = 1
	}

	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxChunkSize
		end := start + maxChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		data := make([]byte, end-start)
		copy(data, payload[start:end])
		chunks = append(chunks, Chunk{
			TransferID: id,
			Index:      uint32(i),
			Total:      uint32(total),
			Data:       data,
		})
	}
	return chunks, nil
}

type pendingTransfer struct {
	total    uint32
	received map[uint32][]byte
}

// Assembler collects chunks per transfer id and hands back the
// reassembled payload exactly once. Transfers that never complete stay
// inert until Abandon or Reset; there is no timeout.
type Assembler struct {
	mu        sync.Mutex
	logger    *logrus.Logger
	transfers map[uuid.UUID]*pendingTransfer
}

func NewAssembler(logger *logrus.Logger) *Assembler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Assembler{
		logger:    logger,
		transfers: make(map[uuid.UUID]*pendingTransfer),
	}
}

// Ingest records one chunk. It returns the full payload and true once
// every index of the transfer is present, removing the transfer's
// state in the same step. Duplicates overwrite the same index;
// out-of-order arrival is expected.
func (a *Assembler) Ingest(c Chunk) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c.Total == 0 {
		a.logger.Warnf("Dropping chunk of transfer %s with zero total", c.TransferID)
		return nil, false
	}
	if c.Index >= c.Total {
		a.logger.Warnf("Dropping chunk %d of transfer %s: index out of range (total %d)", c.Index, c.TransferID, c.Total)
		return nil, false
	}

	transfer, exists := a.transfers[c.TransferID]
	if !exists {
		transfer = &pendingTransfer{
			total:    c.Total,
			received: make(map[uint32][]byte),
		}
		a.transfers[c.TransferID] = transfer
	}
	if c.Total != transfer.total {
		a.logger.Warnf("Dropping chunk of transfer %s: total changed from %d to %d", c.TransferID, transfer.total, c.Total)
		return nil, false
	}

	data := make([]byte, len(c.Data))
	copy(data, c.Data)
	transfer.received[c.Index] = data

	if uint32(len(transfer.received)) < transfer.total {
		return nil, false
	}

	var size int
	for _, part := range transfer.received {
		size += len(part)
	}
	payload := make([]byte, 0, size)
	for i := uint32(0); i < transfer.total; i++ {
		payload = append(payload, transfer.received[i]...)
	}
	delete(a.transfers, c.TransferID)
	return payload, true
}

// Abandon discards the state of one in-flight transfer, typically when
// the peer disconnected mid-transfer.
func (a *Assembler) Abandon(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.transfers, id)
}

// Pending returns the number of incomplete transfers.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transfers)
}

// Reset discards all in-flight transfers.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transfers = make(map[uuid.UUID]*pendingTransfer)
}
