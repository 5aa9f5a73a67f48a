// protocol frames the messages that travel over the data channel. The
// channel itself carries opaque byte blobs; the gob codec here gives
// them types on both ends.
package protocol

import (
	"bytes"
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(&ChatFrame{})
	gob.Register(&FileOfferFrame{})
	gob.Register(&FileChunkFrame{})
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, frame Frame) error {
	return gob.NewEncoder(w).Encode(&frame)
}

func (c *Codec) Decode(r io.Reader) (Frame, error) {
	var frame Frame
	if err := gob.NewDecoder(r).Decode(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *Codec) EncodeToBytes(frame Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Frame, error) {
	return c.Decode(bytes.NewReader(data))
}
