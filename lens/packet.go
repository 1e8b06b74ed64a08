package lens

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/mtraver/base91"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// frameFlagS2 marks a payload compressed with s2.
	frameFlagS2 byte = 1 << 0
	// frameCompressThreshold is the payload size above which frames are compressed.
	frameCompressThreshold = 4 * 1024
	// MaxFrameSize bounds a single frame payload, both compressed and decompressed.
	MaxFrameSize = 16 << 20
)

var (
	ErrPacketTooLarge    = errors.New("packet exceeds max frame size")
	ErrUnknownPacketKind = errors.New("unknown packet kind")
)

// PacketKind identifies what produced a packet.
type PacketKind uint8

const (
	PacketDump PacketKind = iota + 1
	PacketTrace
	PacketCallValue
	PacketError
	PacketPanic
	PacketTable
	PacketIntercept
)

var packetKindNames = map[PacketKind]string{
	PacketDump:      "dump",
	PacketTrace:     "trace",
	PacketCallValue: "callvalue",
	PacketError:     "error",
	PacketPanic:     "panic",
	PacketTable:     "table",
	PacketIntercept: "intercept",
}

func (k PacketKind) String() string {
	if name, ok := packetKindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports if k is a known kind.
func (k PacketKind) Valid() bool {
	_, ok := packetKindNames[k]
	return ok
}

// PacketKinds lists the known kinds in wire order.
func PacketKinds() []PacketKind {
	return []PacketKind{PacketDump, PacketTrace, PacketCallValue, PacketError, PacketPanic, PacketTable, PacketIntercept}
}

// PacketFrame is a Frame as carried on the wire.
type PacketFrame struct {
	File     string `msgpack:"fi"`           // source file path
	Function string `msgpack:"fu,omitempty"` // display name, empty for the outermost location
	Line     int    `msgpack:"l"`
}

// Packet is one pre-rendered message sent from a program to the collector.
type Packet struct {
	ID     string        `msgpack:"id"`
	Seq    uint64        `msgpack:"q"` // per client sequence
	Kind   PacketKind    `msgpack:"k"`
	TimeNS int64         `msgpack:"t"` // unix nanoseconds
	PID    int           `msgpack:"p"`
	Origin string        `msgpack:"o,omitempty"` // file:line of the producing call
	Text   string        `msgpack:"x"`           // styled text
	Trace  []PacketFrame `msgpack:"s,omitempty"`
}

// packetID derives a compact identifier from the process, time and sequence.
func packetID(pid int, timeNS int64, seq uint64) string {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(pid))
	binary.LittleEndian.PutUint64(buf[8:], uint64(timeNS))
	binary.LittleEndian.PutUint64(buf[16:], seq)
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(buf[:]))
	return base91.StdEncoding.EncodeToString(sum[:])
}

// PacketFrames converts a callstack for transport.
func PacketFrames(stack Callstack) []PacketFrame {
	if len(stack) == 0 {
		return nil
	}
	frames := make([]PacketFrame, len(stack))
	for i, f := range stack {
		frames[i] = PacketFrame{File: f.File, Function: f.Name(), Line: f.Line}
	}
	return frames
}

// frameEncoder writes the frame header.
type frameEncoder struct {
	w   io.Writer
	buf [10]byte // reused for all primitive writes
}

func (fw *frameEncoder) writeByte(b byte) {
	fw.buf[0] = b
	_, _ = fw.w.Write(fw.buf[:1])
}

// writeVarint writes a uint64 using variable-length encoding (7 bits per byte, high bit = continuation)
func (fw *frameEncoder) writeVarint(v uint64) {
	var i int
	for v >= 0x80 {
		fw.buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	fw.buf[i] = byte(v)
	_, _ = fw.w.Write(fw.buf[:i+1])
}

// encodePayload encodes the msgpack payload of a frame, also the form the collector stores.
func encodePayload(p *Packet) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	var payload bytes.Buffer
	enc.Reset(&payload)
	enc.UseCompactInts(true)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode packet failed: %w", err)
	}
	return payload.Bytes(), nil
}

// EncodePacket encodes p as a frame: a flags byte, the varint payload length, then the msgpack payload.
func EncodePacket(p *Packet) ([]byte, error) {
	body, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	var flags byte
	if len(body) > MaxFrameSize {
		return nil, ErrPacketTooLarge
	} else if len(body) > frameCompressThreshold {
		body = S2Compress(nil, body)
		flags |= frameFlagS2
	}

	var frame bytes.Buffer
	frame.Grow(len(body) + 11)
	fw := &frameEncoder{w: &frame}
	fw.writeByte(flags)
	fw.writeVarint(uint64(len(body)))
	frame.Write(body)
	return frame.Bytes(), nil
}

// WritePacket encodes p and writes the frame in a single write.
func WritePacket(w io.Writer, p *Packet) error {
	frame, err := EncodePacket(p)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadPacket reads the next frame. A clean end of stream between frames returns io.EOF.
func ReadPacket(r *bufio.Reader) (*Packet, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	} else if flags&^frameFlagS2 != 0 {
		return nil, fmt.Errorf("unsupported frame flags %#x", flags)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read frame length failed: %w", noEOF(err))
	} else if size > MaxFrameSize {
		return nil, ErrPacketTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame failed: %w", noEOF(err))
	}
	if flags&frameFlagS2 != 0 {
		if body, err = S2Decompress(nil, body, MaxFrameSize); errors.Is(err, ErrPacketTooLarge) {
			return nil, err
		} else if err != nil {
			return nil, fmt.Errorf("decompress frame failed: %w", err)
		}
	}
	return DecodePacketPayload(body)
}

// DecodePacketPayload decodes a msgpack packet payload, as stored by the collector.
func DecodePacketPayload(payload []byte) (*Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode packet failed: %w", err)
	} else if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketKind, p.Kind)
	}
	return &p, nil
}

// noEOF reports a stream ending inside a frame as truncated.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
