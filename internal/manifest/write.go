package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const indent = "    "

// Encode renders m as indented JSON with a trailing newline.
func Encode(m Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a manifest document.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &ParseError{Err: err}
	}
	if m.Manifest != Tag {
		return Manifest{}, &SchemaError{Index: -1, Field: "manifest", Cause: fmt.Sprintf("unexpected tag %q", m.Manifest)}
	}
	return m, nil
}

// WriteFile replaces path atomically. The parent directory must already exist.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Emit writes the encoded manifest to path and then to console when non-nil.
// Nothing reaches the console unless the file write succeeded.
func Emit(m Manifest, path string, console io.Writer) ([]byte, error) {
	data, err := Encode(m)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, data); err != nil {
		return nil, err
	}
	if console != nil {
		if _, err := console.Write(data); err != nil {
			return data, fmt.Errorf("print manifest: %w", err)
		}
	}
	return data, nil
}
