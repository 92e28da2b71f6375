package tomldoc

import (
	"github.com/pelletier/go-toml/v2"
)

// normalizeTree rewrites decoder-specific types into ones the value model
// understands. Offset date-times arrive as time.Time and pass through;
// local dates and times have no zone, so they normalize to their canonical
// string form rather than guessing one.
func normalizeTree(raw any) any {
	switch x := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			out[k] = normalizeTree(v)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = normalizeTree(v)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, v := range x {
			out[i] = normalizeTree(v)
		}
		return out
	case toml.LocalDate:
		return x.String()
	case toml.LocalDateTime:
		return x.String()
	case toml.LocalTime:
		return x.String()
	default:
		return raw
	}
}
