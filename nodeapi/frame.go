package nodeapi

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flightlabs/aerodb/internal/binario"
)

// maxFrameSize bounds a single message payload. Anything larger indicates a
// corrupted stream or a misbehaving peer.
const maxFrameSize = 64 << 20

// WriteFrame encodes the payload with msgpack and writes a single frame.
func WriteFrame(w io.Writer, kind uint8, payload any) error {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}

	writer := binario.NewWriter(w, binary.BigEndian)

	if err := writer.WriteUint8(kind); err != nil {
		return err
	}

	return writer.WriteBytes(body)
}

// ReadFrame reads a single frame and returns its kind and raw payload.
func ReadFrame(r io.Reader) (uint8, []byte, error) {
	reader := binario.NewReader(r, binary.BigEndian)

	kind, err := reader.ReadUint8()
	if err != nil {
		return 0, nil, err
	}

	length, err := reader.ReadUint32()
	if err != nil {
		return 0, nil, err
	}

	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	return kind, body, nil
}
