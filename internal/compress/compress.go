package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

func WrapWriter(kind string, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case "", TypeNone:
		return nopWriteCloser{w}, nil
	case TypeGzip:
		return gzip.NewWriter(w), nil
	case TypeZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

func WrapReader(kind string, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case "", TypeNone:
		return io.NopCloser(r), nil
	case TypeGzip:
		return gzip.NewReader(r)
	case TypeZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{Decoder: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

// Extension is the key suffix for kind, without a leading dot.
func Extension(kind string) string {
	switch kind {
	case TypeGzip:
		return "gz"
	case TypeZstd:
		return "zst"
	default:
		return ""
	}
}

// Bytes compresses data in one go. Receipts are small enough to hold in memory.
func Bytes(kind string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := WrapWriter(kind, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
