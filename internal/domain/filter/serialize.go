package filter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrCorruptEngine indicates a serialized engine that cannot be decoded.
var ErrCorruptEngine = errors.New("corrupt filter engine blob")

var blobMagic = []byte("BHFE")

const blobVersion = 1

// Serialize encodes the engine's rules. The blob is a magic header, a format
// version byte and the zstd-compressed rule lines.
func (e *Engine) Serialize() ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	defer enc.Close()

	payload := []byte(strings.Join(e.Rules(), "\n"))
	out := make([]byte, 0, len(blobMagic)+1+len(payload)/4)
	out = append(out, blobMagic...)
	out = append(out, blobVersion)
	return enc.EncodeAll(payload, out), nil
}

// Deserialize decodes a blob written by Serialize.
func Deserialize(blob []byte) (*Engine, error) {
	if len(blob) < len(blobMagic)+1 || !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptEngine)
	}
	if v := blob[len(blobMagic)]; v != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptEngine, v)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(blob[len(blobMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEngine, err)
	}
	return New(string(payload)), nil
}
