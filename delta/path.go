package delta

import "strings"

// Separator joins path segments in the textual form of a path.
const Separator = "."

// ParsePath splits a dot-joined path. The empty string is the root path.
func ParsePath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, Separator)
}

// JoinPath is the inverse of ParsePath.
func JoinPath(path []string) string {
	return strings.Join(path, Separator)
}

// HasPrefix reports whether path starts with all the segments of prefix.
func HasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Get returns the value stored at path. The root path returns s itself.
func Get(s map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return s, true
	}
	cur := s
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	v, ok := cur[path[len(path)-1]]
	return v, ok
}

// Set writes v at path inside s, replacing any non-map intermediate value
// with a fresh map. Set mutates s; callers that need the original intact
// must work on a CloneState copy. Setting the root path is a no-op.
func Set(s map[string]any, path []string, v any) {
	if len(path) == 0 || s == nil {
		return
	}
	cur := s
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok || next == nil {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = v
}

// Delete removes the key at path. Missing intermediate maps are ignored.
func Delete(s map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	cur := s
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, path[len(path)-1])
}
