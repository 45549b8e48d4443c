package binario

import (
	"encoding/binary"
	"io"
)

// Reader is the counterpart of Writer.
type Reader struct {
	byteOrder binary.ByteOrder
	reader    io.Reader
}

func NewReader(reader io.Reader, byteOrder binary.ByteOrder) *Reader {
	return &Reader{
		reader:    reader,
		byteOrder: byteOrder,
	}
}

func (r *Reader) ReadUint8() (uint8, error) {
	bs := make([]byte, 1)
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return bs[0], nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	bs := make([]byte, 4)
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return r.byteOrder.Uint32(bs), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	bs := make([]byte, 8)
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return 0, err
	}

	return r.byteOrder.Uint64(bs), nil
}

// ReadBytes reads a byte string prefixed with its length as uint32.
func (r *Reader) ReadBytes() ([]byte, error) {
	length, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	bs := make([]byte, length)
	if _, err := io.ReadFull(r.reader, bs); err != nil {
		return nil, err
	}

	return bs, nil
}

func (r *Reader) ReadString() (string, error) {
	bs, err := r.ReadBytes()
	return string(bs), err
}
