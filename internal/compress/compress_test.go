package compress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBytesThenWrapReader(t *testing.T) {
	receipt := []byte(`{"created":[` + strings.Repeat(`{"type":"file","sourceUri":"/dist/a.js","dataTxId":"TX"},`, 50) + `{}]}`)
	for _, kind := range []string{TypeNone, TypeGzip, TypeZstd} {
		t.Run(kind, func(t *testing.T) {
			packed, err := Bytes(kind, receipt)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if kind != TypeNone && len(packed) >= len(receipt) {
				t.Fatalf("expected %s to shrink repetitive input (%d >= %d)", kind, len(packed), len(receipt))
			}
			rc, err := WrapReader(kind, bytes.NewReader(packed))
			if err != nil {
				t.Fatalf("reader: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, receipt) {
				t.Fatalf("%s output differs from input", kind)
			}
		})
	}
}

func TestUnsupported(t *testing.T) {
	if _, err := Bytes("brotli", nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := WrapReader("brotli", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtension(t *testing.T) {
	if Extension(TypeZstd) != "zst" || Extension(TypeGzip) != "gz" || Extension(TypeNone) != "" {
		t.Fatal("unexpected extensions")
	}
}
