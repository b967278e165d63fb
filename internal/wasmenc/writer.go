package wasmenc

import (
	"bytes"
	"encoding/binary"
)

// writer accumulates LEB128-encoded module bytes.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) write(data []byte) { w.buf.Write(data) }

// u32 writes an unsigned LEB128 encoded uint32.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// s64 writes a signed LEB128 encoded int64.
func (w *writer) s64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && (b&0x40) == 0) || (v == -1 && (b&0x40) != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// name writes a length-prefixed UTF-8 name.
func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) u32le(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

func (w *writer) section(id byte, sec *writer) {
	w.byte(id)
	w.u32(uint32(sec.buf.Len()))
	w.write(sec.bytes())
}
