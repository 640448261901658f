package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const runTimeLayout = "20060102T150405Z"

// BuildObjectKey constructs the archive key for one artifact of a deploy run.
func BuildObjectKey(prefix, dest string, when time.Time, runID, kind string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	parts = append(parts, dest)
	name := fmt.Sprintf("%s_%s", when.UTC().Format(runTimeLayout), runID)
	if kind != "" {
		name = name + "." + kind
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

// BuildPrefix builds the listing prefix for archived runs of a destination.
// It ends in "/" so object stores that match raw key prefixes never pick up
// a sibling destination such as "site-staging" when listing "site".
func BuildPrefix(prefix, dest string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if dest != "" {
		parts = append(parts, dest)
	}
	joined := path.Join(parts...)
	if joined == "" {
		return ""
	}
	return joined + "/"
}

// RunStem strips the artifact kind from an archive key, leaving the part
// shared by every object of one run.
func RunStem(key string) string {
	dir, name := path.Split(key)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return dir + name
}

// RunTime recovers the run timestamp from an archive key built by BuildObjectKey.
func RunTime(key string) (time.Time, bool) {
	name := path.Base(RunStem(key))
	i := strings.IndexByte(name, '_')
	if i < 0 {
		return time.Time{}, false
	}
	when, err := time.Parse(runTimeLayout, name[:i])
	if err != nil {
		return time.Time{}, false
	}
	return when, true
}
