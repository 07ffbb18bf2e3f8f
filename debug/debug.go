package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type debug struct {
	Diff   bool
	Patch  bool
	Commit bool
	Push   bool
	Track  bool
	Verify bool
}

var d *debug

func init() {
	d = &debug{}
	d.Diff = boolEnv("SYNCD_DEBUG_DIFF")
	d.Patch = boolEnv("SYNCD_DEBUG_PATCH")
	d.Commit = boolEnv("SYNCD_DEBUG_COMMIT")
	d.Push = boolEnv("SYNCD_DEBUG_PUSH")
	d.Track = boolEnv("SYNCD_DEBUG_TRACK")
	d.Verify = boolEnv("SYNCD_DEBUG_VERIFY")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Diff() bool {
	return d.Diff
}
func Patch() bool {
	return d.Patch
}
func Commit() bool {
	return d.Commit
}
func Push() bool {
	return d.Push
}
func Track() bool {
	return d.Track
}

// Verify reports whether every computed patch should be applied back to its
// source and checked against its target.
func Verify() bool {
	return d.Verify
}

// Logf writes to stderr, rendering JSON values as indented JSON.
func Logf(msg string, args ...any) {
	for i := range args {
		a := args[i]
		switch a.(type) {
		case map[string]any, []any, json.Number:
			d, err := json.MarshalIndent(a, "   |", "  ")
			if err != nil {
				args[i] = fmt.Sprintf("%v", a)
				continue
			}
			args[i] = string(d)
		case json.Marshaler:
			d, err := json.Marshal(a)
			if err != nil {
				continue
			}
			args[i] = string(d)
		}
	}
	fmt.Fprintf(os.Stderr, msg, args...)
}
