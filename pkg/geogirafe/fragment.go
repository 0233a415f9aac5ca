package geogirafe

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const (
	// Alphabet is the URL-safe base64 alphabet of fragment halves. It excludes
	// Separator so a fragment splits unambiguously.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_."

	// Separator joins the primary and extended halves of a fragment.
	Separator = "-"
)

var fragmentEncoding = base64.NewEncoding(Alphabet).WithPadding(base64.NoPadding)

// Compress deflates data inside a zlib stream and encodes it with Alphabet.
func Compress(data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress state: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress state: %w", err)
	}
	return fragmentEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress.
func Decompress(text string) ([]byte, error) {
	raw, err := fragmentEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fragment: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress fragment: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress fragment: %w", err)
	}
	return data, nil
}

// DecodeFragment splits a fragment, or a full URL carrying one after '#', into its
// two halves and returns their decompressed JSON.
func DecodeFragment(fragment string) (primary, extended []byte, err error) {
	if i := strings.IndexByte(fragment, '#'); i >= 0 {
		fragment = fragment[i+1:]
	}
	parts := strings.Split(fragment, Separator)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("expected 2 fragment halves, got %d", len(parts))
	}
	if primary, err = Decompress(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("primary state: %w", err)
	}
	if extended, err = Decompress(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("extended state: %w", err)
	}
	return primary, extended, nil
}
