// SPDX-License-Identifier: Unlicense OR MIT

package wl

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerSize is the size of the object id and the size/opcode word.
const headerSize = 8

// maxMessageSize is the libwayland limit on a single message.
const maxMessageSize = 4096

// maxFds is the maximum number of descriptors sent with one sendmsg.
const maxFds = 28

var errShortMessage = errors.New("wayland: truncated message")

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// Float returns f as a float64.
func (f Fixed) Float() float64 {
	return float64(f) / 256
}

// fd marks a request argument as a file descriptor. It is sent out of
// band and takes no space in the message body.
type fd int

// Interface describes a protocol interface.
type Interface struct {
	Name string
	// Events holds the argument signature of each event, indexed by
	// opcode: i int, u uint, f fixed, s string, o object, n new id,
	// a array, h descriptor.
	Events []string
}

func (i *Interface) fdCount(opcode uint16) (int, error) {
	if int(opcode) >= len(i.Events) {
		return 0, fmt.Errorf("wayland: %s: invalid event opcode %d", i.Name, opcode)
	}
	n := 0
	for _, c := range i.Events[opcode] {
		if c == 'h' {
			n++
		}
	}
	return n, nil
}

// encode appends a message to buf. Descriptors are returned separately
// in the order they appear.
func encode(buf []byte, id uint32, opcode uint16, args []interface{}) ([]byte, []int, error) {
	start := len(buf)
	buf = append(buf, make([]byte, headerSize)...)
	var fds []int
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			buf = binary.LittleEndian.AppendUint32(buf, v)
		case int32:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		case Fixed:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		case string:
			buf = appendString(buf, v)
		case []byte:
			buf = appendArray(buf, v)
		case fd:
			fds = append(fds, int(v))
		case nil:
			buf = binary.LittleEndian.AppendUint32(buf, 0)
		case object:
			var id uint32
			if p := v.proxy(); p != nil {
				id = p.id
			}
			buf = binary.LittleEndian.AppendUint32(buf, id)
		default:
			return buf[:start], nil, fmt.Errorf("wayland: unsupported argument type %T", arg)
		}
	}
	size := len(buf) - start
	if size > maxMessageSize {
		return buf[:start], nil, fmt.Errorf("wayland: message too large: %d bytes", size)
	}
	binary.LittleEndian.PutUint32(buf[start:], id)
	binary.LittleEndian.PutUint32(buf[start+4:], uint32(size)<<16|uint32(opcode))
	return buf, fds, nil
}

func pad(n int) int {
	return (4 - n%4) % 4
}

func appendString(buf []byte, s string) []byte {
	n := len(s) + 1
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	buf = append(buf, s...)
	buf = append(buf, 0)
	return append(buf, make([]byte, pad(n))...)
}

func appendArray(buf []byte, a []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a)))
	buf = append(buf, a...)
	return append(buf, make([]byte, pad(len(a)))...)
}

// header decodes a message header.
func header(b []byte) (id uint32, opcode uint16, size int) {
	id = binary.LittleEndian.Uint32(b)
	word := binary.LittleEndian.Uint32(b[4:])
	return id, uint16(word), int(word >> 16)
}

// Message is a decoded event. Arguments are read in order.
type Message struct {
	Opcode uint16

	target object
	data   []byte
	off    int
	fds    []int
	err    error
}

func (m *Message) next(n int) []byte {
	if m.err != nil {
		return nil
	}
	if m.off+n > len(m.data) {
		m.err = errShortMessage
		return nil
	}
	b := m.data[m.off : m.off+n]
	m.off += n
	return b
}

// Uint32 reads an uint, object or new id argument.
func (m *Message) Uint32() uint32 {
	b := m.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int32 reads an int argument.
func (m *Message) Int32() int32 {
	return int32(m.Uint32())
}

// Fixed reads a fixed argument.
func (m *Message) Fixed() Fixed {
	return Fixed(m.Uint32())
}

// String reads a string argument. A null string reads as "".
func (m *Message) String() string {
	n := int(m.Uint32())
	if n == 0 {
		return ""
	}
	b := m.next(n + pad(n))
	if b == nil {
		return ""
	}
	if b[n-1] != 0 {
		m.err = errors.New("wayland: string not NUL terminated")
		return ""
	}
	return string(b[:n-1])
}

// Array reads an array argument. The result aliases the message.
func (m *Message) Array() []byte {
	n := int(m.Uint32())
	b := m.next(n + pad(n))
	if b == nil {
		return nil
	}
	return b[:n]
}

// Fd reads a descriptor argument. The caller owns the descriptor.
// It returns -1 if the message carries no more descriptors.
func (m *Message) Fd() int {
	if len(m.fds) == 0 {
		if m.err == nil {
			m.err = errors.New("wayland: missing descriptor")
		}
		return -1
	}
	f := m.fds[0]
	m.fds = m.fds[1:]
	return f
}

// Err returns the first decoding error.
func (m *Message) Err() error {
	return m.err
}
