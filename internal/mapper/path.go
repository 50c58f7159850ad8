package mapper

import (
	"strconv"
	"strings"
)

// lookup resolves a dotted path ("claim.lines.0.cpt") over a decoded payload.
// A key containing dots is matched literally before the path is split.
// found is false when any segment is missing; a present null returns (nil, true).
func lookup(payload map[string]any, path string) (value any, found bool) {
	if v, ok := payload[path]; ok {
		return v, true
	}

	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// rootKey returns the top-level payload key a path reads from
func rootKey(payload map[string]any, path string) string {
	if _, ok := payload[path]; ok {
		return path
	}
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
