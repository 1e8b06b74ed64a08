package lens

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePacket(text string) *Packet {
	return &Packet{
		ID:     packetID(42, 1_700_000_000_000_000_000, 1),
		Seq:    1,
		Kind:   PacketDump,
		TimeNS: 1_700_000_000_000_000_000,
		PID:    42,
		Origin: "main.go:12",
		Text:   text,
		Trace: []PacketFrame{
			{File: "main.go", Function: "main.run", Line: 12},
			{File: "main.go", Line: 3},
		},
	}
}

func readerOf(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}

func TestPacketRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		compressed bool
	}{
		{"small", "count: 3", false},
		{"empty_text", "", false},
		{"large", strings.Repeat("items: [1, 2, 3] // 3 items\n", 400), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePacket(tt.text)
			frame, err := EncodePacket(p)
			require.NoError(t, err)
			assert.Equal(t, tt.compressed, frame[0]&frameFlagS2 != 0)
			if tt.compressed {
				assert.Less(t, len(frame), len(tt.text))
			}

			decoded, err := ReadPacket(readerOf(frame))
			require.NoError(t, err)
			assert.Equal(t, p, decoded)
		})
	}
}

func TestReadPacketStream(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, WritePacket(&stream, samplePacket(text)))
	}

	r := readerOf(stream.Bytes())
	for _, text := range []string{"a", "b", "c"} {
		p, err := ReadPacket(r)
		require.NoError(t, err)
		assert.Equal(t, text, p.Text)
	}
	_, err := ReadPacket(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadPacketErrors(t *testing.T) {
	t.Parallel()

	frame, err := EncodePacket(samplePacket("hello"))
	require.NoError(t, err)

	unknown := samplePacket("x")
	unknown.Kind = 99
	payload, err := encodePayload(unknown)
	require.NoError(t, err)
	var unknownFrame bytes.Buffer
	fw := &frameEncoder{w: &unknownFrame}
	fw.writeByte(0)
	fw.writeVarint(uint64(len(payload)))
	unknownFrame.Write(payload)

	oversized := &bytes.Buffer{}
	fw = &frameEncoder{w: oversized}
	fw.writeByte(0)
	fw.writeVarint(MaxFrameSize + 1)

	tests := []struct {
		name   string
		data   []byte
		expect error
	}{
		{"truncated_payload", frame[:len(frame)-2], io.ErrUnexpectedEOF},
		{"truncated_length", []byte{0}, io.ErrUnexpectedEOF},
		{"unknown_kind", unknownFrame.Bytes(), ErrUnknownPacketKind},
		{"declared_too_large", oversized.Bytes(), ErrPacketTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPacket(readerOf(tt.data))
			assert.ErrorIs(t, err, tt.expect)
		})
	}

	t.Run("unsupported_flags", func(t *testing.T) {
		_, err := ReadPacket(readerOf([]byte{0x80, 1, 0}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported frame flags")
	})
	t.Run("corrupt_compressed", func(t *testing.T) {
		_, err := ReadPacket(readerOf([]byte{frameFlagS2, 3, 0xff, 0xff, 0xff}))
		require.Error(t, err)
	})
}

func TestEncodePacketTooLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates a frame larger than the limit")
	}
	t.Parallel()

	_, err := EncodePacket(samplePacket(strings.Repeat("x", MaxFrameSize+1)))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestPacketID(t *testing.T) {
	t.Parallel()

	id := packetID(1, 100, 1)
	assert.Equal(t, id, packetID(1, 100, 1))
	assert.NotEqual(t, id, packetID(1, 100, 2))
	assert.NotEqual(t, id, packetID(2, 100, 1))
	assert.NotEmpty(t, id)
}

func TestPacketKind(t *testing.T) {
	t.Parallel()

	for _, k := range PacketKinds() {
		assert.True(t, k.Valid())
		assert.NotContains(t, k.String(), "kind(")
	}
	assert.False(t, PacketKind(0).Valid())
	assert.Equal(t, "kind(99)", PacketKind(99).String())
	assert.Equal(t, "intercept", PacketIntercept.String())
}

func TestPacketFrames(t *testing.T) {
	t.Parallel()

	assert.Nil(t, PacketFrames(nil))

	frames := PacketFrames(Callstack{
		{File: "/src/app/run.go", Line: 9, Package: "example.com/app", Owner: "*Worker", Function: "Run"},
		{File: "/src/app/main.go", Line: 4},
	})
	assert.Equal(t, []PacketFrame{
		{File: "/src/app/run.go", Function: "app.(*Worker).Run", Line: 9},
		{File: "/src/app/main.go", Line: 4},
	}, frames)
}

func TestOriginOf(t *testing.T) {
	t.Parallel()

	assert.Empty(t, originOf(nil))
	assert.Empty(t, originOf(Callstack{{Function: "f"}}))
	assert.Equal(t, "a.go:3", originOf(Callstack{{File: "a.go", Line: 3}, {File: "b.go", Line: 1}}))
}
