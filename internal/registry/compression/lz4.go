package compression

import (
	"fmt"

	"github.com/pierrec/lz4"
)

// NoCompressor is a pass-through codec.
type NoCompressor struct{}

// Name returns the name of the compressor.
func (c *NoCompressor) Name() string { return "none" }

// Compress returns a copy of the data unchanged.
func (c *NoCompressor) Compress(data []byte) ([]byte, error) {
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Decompress returns a copy of the data unchanged.
func (c *NoCompressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// MaxCompressedSize returns the input size unchanged.
func (c *NoCompressor) MaxCompressedSize(uncompressedSize int) int {
	return uncompressedSize
}

// LZ4Compressor implements LZ4 block compression.
type LZ4Compressor struct{}

// Name returns the name of the compressor.
func (c *LZ4Compressor) Name() string { return "lz4" }

// Compress compresses data using LZ4. A zero return length means the
// data was incompressible; callers fall back to storing it raw.
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	return compressed[:n], nil
}

// Decompress decompresses an LZ4 block into a buffer of the recorded
// original size.
func (c *LZ4Compressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize == 0 {
		return []byte{}, nil
	}

	decompressed := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data, decompressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	return decompressed[:n], nil
}

// MaxCompressedSize returns the LZ4 worst-case bound.
func (c *LZ4Compressor) MaxCompressedSize(uncompressedSize int) int {
	return lz4.CompressBlockBound(uncompressedSize)
}
