package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
)

// EntityFile is the only entity type that lands in the manifest.
const EntityFile = "file"

// Receipt is the parsed upload output.
type Receipt struct {
	Files      FileMap
	Skipped    map[string]int // non-file entities by type
	Duplicates int            // file entries that replaced an earlier path
}

type rawOutput struct {
	Created *[]json.RawMessage `json:"created"`
}

// entity is one element of the created list, kept raw so that only file
// entries have their other fields examined.
type entity map[string]json.RawMessage

// str decodes field as a JSON string. ok is false when the field is absent.
func (e entity) str(field string) (value string, ok bool, err error) {
	raw, ok := e[field]
	if !ok {
		return "", false, nil
	}
	if bytes.Equal(raw, []byte("null")) || json.Unmarshal(raw, &value) != nil {
		return "", true, errors.New("not a string")
	}
	return value, true, nil
}

// Parse reads upload tool output and maps each uploaded file, relative to
// root, to its data transaction id.
func Parse(data []byte, root string) (*Receipt, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: errors.New("empty output")}
	}
	if trimmed[0] != '{' {
		return nil, &ParseError{Err: errors.New("output is not a JSON object")}
	}
	var out rawOutput
	if err := json.Unmarshal(trimmed, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "created" {
			return nil, &SchemaError{Index: -1, Field: "created", Cause: "not an array"}
		}
		return nil, &ParseError{Err: err}
	}
	if out.Created == nil {
		return nil, &SchemaError{Index: -1, Field: "created", Cause: "missing"}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &SchemaError{Index: -1, Field: "root", Cause: err.Error()}
	}

	receipt := &Receipt{Files: FileMap{}, Skipped: map[string]int{}}
	for i, raw := range *out.Created {
		var ent entity
		if err := json.Unmarshal(raw, &ent); err != nil || ent == nil {
			return nil, &SchemaError{Index: i, Field: "type", Cause: "entry is not an object"}
		}
		rawType, ok := ent["type"]
		if !ok || bytes.Equal(rawType, []byte("null")) {
			return nil, &SchemaError{Index: i, Field: "type", Cause: "missing"}
		}
		var typ string
		if err := json.Unmarshal(rawType, &typ); err != nil {
			// Not a string, so certainly not a file.
			receipt.Skipped[string(rawType)]++
			continue
		}
		if typ != EntityFile {
			receipt.Skipped[typ]++
			continue
		}

		source, ok, err := ent.str("sourceUri")
		if err != nil {
			return nil, &SchemaError{Index: i, Field: "sourceUri", Cause: err.Error()}
		}
		if !ok {
			return nil, &SchemaError{Index: i, Field: "sourceUri", Cause: "missing"}
		}
		txID, ok, err := ent.str("dataTxId")
		if err != nil {
			return nil, &SchemaError{Index: i, Field: "dataTxId", Cause: err.Error()}
		}
		if !ok {
			return nil, &SchemaError{Index: i, Field: "dataTxId", Cause: "missing"}
		}
		rel, err := RelativePath(absRoot, source)
		if err != nil {
			return nil, &SchemaError{Index: i, Field: "sourceUri", Cause: err.Error()}
		}
		if _, dup := receipt.Files[rel]; dup {
			receipt.Duplicates++
		}
		receipt.Files[rel] = txID
	}
	return receipt, nil
}

var errOutsideRoot = errors.New("outside upload root")

// RelativePath returns source relative to root with forward slashes.
func RelativePath(root, source string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absSource, err := filepath.Abs(source)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absSource)
	if err != nil {
		return "", err
	}
	rel = NormalizePath(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errOutsideRoot
	}
	return rel, nil
}

// NormalizePath converts both separator styles to forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}
