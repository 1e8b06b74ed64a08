package lens

import (
	"runtime"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// zstdCoders is shared by every stored blob, EncodeAll and DecodeAll are safe for concurrent use.
var zstdCoders = sync.OnceValues(func() (*zstd.Encoder, *zstd.Decoder) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderConcurrency(max(1, runtime.NumCPU()/2)))
	if err != nil {
		panic(err) // only fails for invalid options
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return encoder, decoder
})

// ZstdCompress compresses a stored packet blob and appends it to dst.
func ZstdCompress(dst, data []byte) []byte {
	encoder, _ := zstdCoders()
	return encoder.EncodeAll(data, dst)
}

// ZstdDecompress appends the decompressed blob to dst.
func ZstdDecompress(dst, data []byte) ([]byte, error) {
	_, decoder := zstdCoders()
	return decoder.DecodeAll(data, dst)
}

// S2Compress compresses a packet frame payload with s2.
func S2Compress(dst, data []byte) []byte {
	return s2.Encode(dst, data)
}

// S2Decompress decompresses s2 data, refusing output larger than maxSize before allocating it.
func S2Decompress(dst, data []byte, maxSize int) ([]byte, error) {
	if n, err := s2.DecodedLen(data); err != nil {
		return nil, err
	} else if n > maxSize {
		return nil, ErrPacketTooLarge
	}
	return s2.Decode(dst, data)
}
