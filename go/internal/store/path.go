package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key names a document.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Path is a parsed store path.
type Path struct {
	Key   Key
	Field []string
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ParsePath splits p into its document key and field segments.
func ParsePath(p string) (Path, error) {
	segs, err := splitSegments(p)
	if err != nil {
		return Path{}, err
	}
	if len(segs) < 2 {
		return Path{}, fmt.Errorf("%w: %q does not name a document", ErrInvalidPath, p)
	}
	return Path{Key: Key{Collection: segs[0], ID: segs[1]}, Field: segs[2:]}, nil
}

func splitSegments(p string) ([]string, error) {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return nil, fmt.Errorf("%w: bad segment in %q", ErrInvalidPath, p)
		}
	}
	return segs, nil
}

// Normalize converts v into the JSON tree form every backend stores:
// map[string]any, []any, float64, string, bool or nil.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return out, nil
}

// getIn walks field through nested maps.
func getIn(root any, field []string) any {
	cur := root
	for _, f := range field {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[f]
	}
	return cur
}

// setIn returns root with value stored at field. Maps along the way are
// copied, everything else is shared with root. A nil value removes the key.
func setIn(root any, field []string, value any) any {
	if len(field) == 0 {
		return value
	}
	src, _ := root.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	child := setIn(out[field[0]], field[1:], value)
	if child == nil {
		delete(out, field[0])
	} else {
		out[field[0]] = child
	}
	return out
}

// copyTree deep-copies a normalized tree.
func copyTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = copyTree(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = copyTree(c)
		}
		return out
	default:
		return v
	}
}

// CopyDocument deep-copies document data.
func CopyDocument(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return copyTree(data).(map[string]any)
}
