package model

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteVersion is the highest wire revision this build understands.
// §6.3: implementations accept any revision <= WriteVersion and reject
// higher ones.
const WriteVersion uint8 = 1

// Envelope is the {writeVersion, revision, payload} record §6.3
// specifies. Payload is the already-encoded body of a State or Update.
type Envelope struct {
	WriteVersion uint8
	Revision     uint8
	Payload      []byte
}

// ErrUnsupportedRevision is returned when a record's revision exceeds
// the reader's WriteVersion.
var ErrUnsupportedRevision = fmt.Errorf("model: record revision exceeds supported write version")

// EncodeEnvelope writes the envelope header followed by the payload.
func EncodeEnvelope(e Envelope) []byte {
	buf := make([]byte, 2+len(e.Payload))
	buf[0] = e.WriteVersion
	buf[1] = e.Revision
	copy(buf[2:], e.Payload)
	return buf
}

// DecodeEnvelope parses the header and returns the envelope. It does not
// interpret Payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < 2 {
		return Envelope{}, io.ErrUnexpectedEOF
	}
	e := Envelope{WriteVersion: b[0], Revision: b[1], Payload: b[2:]}
	if e.Revision > WriteVersion {
		return Envelope{}, ErrUnsupportedRevision
	}
	return e, nil
}

// Codec is a marshal/unmarshal contract for values that cross the
// synchronizer boundary. No type in this module implements it: state
// snapshots are encoded by state.BinaryCodec, and update variants are
// not serialized.
type Codec interface {
	MarshalRG() ([]byte, error)
	UnmarshalRG([]byte) error
}

// Writer is a tiny length-prefixed binary writer matching §6.3's
// encoding: u32 map lengths, u16 string lengths.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 256)} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

func (w *Writer) PutString(s string) {
	if len(s) > 0xFFFF {
		panic("model: string exceeds u16 length prefix")
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	w.buf = append(w.buf, b[:]...)
	w.buf = append(w.buf, s...)
}

func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader is the matching consumer for Writer's layout.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

var ErrShortBuffer = fmt.Errorf("model: buffer too short while decoding")

func (r *Reader) GetUint8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrShortBuffer
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) GetUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) GetUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

func (r *Reader) GetString() (string, error) {
	if r.pos+2 > len(r.buf) {
		return "", ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	if r.pos+n > len(r.buf) {
		return "", ErrShortBuffer
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func (r *Reader) GetBytes() ([]byte, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// MarshalStreamCut encodes a StreamCut as u32 count followed by
// (stream-cut-key, offset) pairs.
func MarshalStreamCut(sc StreamCut) []byte {
	w := NewWriter()
	w.PutUint32(uint32(len(sc)))
	for seg, off := range sc {
		w.PutString(seg.Stream.Scope)
		w.PutString(seg.Stream.Name)
		w.PutUint64(seg.SegmentID)
		w.PutInt64(off)
	}
	return w.Bytes()
}

// UnmarshalStreamCut decodes bytes produced by MarshalStreamCut.
func UnmarshalStreamCut(b []byte) (StreamCut, error) {
	r := NewReader(b)
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	sc := make(StreamCut, n)
	for i := uint32(0); i < n; i++ {
		scope, err := r.GetString()
		if err != nil {
			return nil, err
		}
		name, err := r.GetString()
		if err != nil {
			return nil, err
		}
		segID, err := r.GetUint64()
		if err != nil {
			return nil, err
		}
		off, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		sc[Segment{Stream: Stream{Scope: scope, Name: name}, SegmentID: segID}] = off
	}
	return sc, nil
}
