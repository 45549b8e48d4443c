package binario

import (
	"encoding/binary"
	"io"
)

// Writer writes fixed-width integers and length-prefixed byte strings
// in the given byte order.
type Writer struct {
	writer    io.Writer
	byteOrder binary.ByteOrder
}

func NewWriter(writer io.Writer, byteOrder binary.ByteOrder) *Writer {
	return &Writer{
		writer:    writer,
		byteOrder: byteOrder,
	}
}

func (w *Writer) WriteUint8(value uint8) error {
	_, err := w.writer.Write([]byte{value})
	return err
}

func (w *Writer) WriteUint32(value uint32) error {
	bf := make([]byte, 4)
	w.byteOrder.PutUint32(bf, value)
	_, err := w.writer.Write(bf)

	return err
}

func (w *Writer) WriteUint64(value uint64) error {
	bf := make([]byte, 8)
	w.byteOrder.PutUint64(bf, value)
	_, err := w.writer.Write(bf)

	return err
}

// WriteBytes writes the byte string prefixed with its length as uint32.
func (w *Writer) WriteBytes(value []byte) error {
	if err := w.WriteUint32(uint32(len(value))); err != nil {
		return err
	}

	_, err := w.writer.Write(value)

	return err
}

func (w *Writer) WriteString(value string) error {
	return w.WriteBytes([]byte(value))
}
