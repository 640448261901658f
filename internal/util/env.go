package util

import (
	"os"
	"sort"
)

// MergeEnv appends extra KEY=VALUE entries, in key order, to the current
// process environment. Later entries win when the child resolves duplicates.
func MergeEnv(extra map[string]string) []string {
	env := append([]string{}, os.Environ()...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
