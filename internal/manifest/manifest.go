package manifest

const (
	// Tag and SchemaVersion identify an Arweave path manifest.
	Tag           = "arweave/paths"
	SchemaVersion = "0.2.0"

	DefaultIndex = "index.html"
)

// FileMap maps a forward-slash path relative to the upload root to the
// content identifier assigned by the network.
type FileMap map[string]string

// Manifest is the arweave/paths document. Field order matches the JSON layout.
type Manifest struct {
	Manifest string               `json:"manifest"`
	Version  string               `json:"version"`
	Index    Index                `json:"index"`
	Paths    map[string]PathEntry `json:"paths"`
	Fallback *PathEntry           `json:"fallback,omitempty"`
}

type Index struct {
	Path string `json:"path"`
}

type PathEntry struct {
	ID string `json:"id"`
}

// Build wraps files into a manifest. An empty index selects DefaultIndex.
// Fallback is set only when the index path was uploaded.
func Build(files FileMap, index string) Manifest {
	if index == "" {
		index = DefaultIndex
	}
	m := Manifest{
		Manifest: Tag,
		Version:  SchemaVersion,
		Index:    Index{Path: index},
		Paths:    make(map[string]PathEntry, len(files)),
	}
	for p, id := range files {
		m.Paths[p] = PathEntry{ID: id}
	}
	if id, ok := files[index]; ok {
		m.Fallback = &PathEntry{ID: id}
	}
	return m
}
