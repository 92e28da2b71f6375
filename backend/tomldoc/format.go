package tomldoc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/emberward/confstore/value"
)

// errNullValue is returned for writes of null, which TOML cannot represent.
var errNullValue = errors.New("toml cannot represent a null value")

// renderInline renders a value in single-line TOML form: scalars as the
// library marshals them, arrays bracketed, tables as inline tables with
// sorted keys.
func renderInline(v value.Value) (string, error) {
	switch v.Kind() {
	case value.KindNull:
		return "", errNullValue

	case value.KindArray:
		parts := make([]string, 0, v.Len())
		for _, e := range v.Elems() {
			s, err := renderInline(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil

	case value.KindTable:
		fields := v.Fields()
		if len(fields) == 0 {
			return "{}", nil
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			s, err := renderInline(fields[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, renderKeyPart(k)+" = "+s)
		}
		return "{ " + strings.Join(parts, ", ") + " }", nil

	default:
		return marshalScalar(v.ToAny())
	}
}

// marshalScalar formats one scalar through the TOML marshaler so string
// escaping, float forms, and timestamps match what the library accepts.
func marshalScalar(x any) (string, error) {
	raw, err := toml.Marshal(map[string]any{"v": x})
	if err != nil {
		return "", fmt.Errorf("render scalar: %w", err)
	}
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "v =")
	return strings.TrimSpace(s), nil
}

// renderKeyPart renders one key segment, quoting when it is not a bare key.
func renderKeyPart(k string) string {
	if k == "" {
		return `""`
	}
	for i := 0; i < len(k); i++ {
		if !isBareKeyChar(k[i]) {
			return fmt.Sprintf("%q", k)
		}
	}
	return k
}

// renderKeyPath renders a dotted key path.
func renderKeyPath(parts []string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = renderKeyPart(p)
	}
	return strings.Join(out, ".")
}

// renderEntryLine renders one "key = value" line with trailing newline.
func renderEntryLine(keyParts []string, v value.Value) (string, error) {
	s, err := renderInline(v)
	if err != nil {
		return "", err
	}
	return renderKeyPath(keyParts) + " = " + s + "\n", nil
}

// renderBody renders a table as section-body lines. Nested tables become
// dotted keys so the text never introduces new headers that could collide
// with headers elsewhere in the document. Empty nested tables render as
// inline {}.
func renderBody(v value.Value) (string, error) {
	var b strings.Builder
	if err := renderBodyInto(&b, nil, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderBodyInto(b *strings.Builder, prefix []string, v value.Value) error {
	fields := v.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := fields[k]
		kp := append(append([]string(nil), prefix...), k)
		if f.IsTable() && f.Len() > 0 {
			if err := renderBodyInto(b, kp, f); err != nil {
				return err
			}
			continue
		}
		line, err := renderEntryLine(kp, f)
		if err != nil {
			return err
		}
		b.WriteString(line)
	}
	return nil
}

// renderSection renders a complete "[path]" section with its body.
func renderSection(parts []string, v value.Value) (string, error) {
	body, err := renderBody(v)
	if err != nil {
		return "", err
	}
	return "[" + renderKeyPath(parts) + "]\n" + body, nil
}

// renderArraySection renders one "[[path]]" element with its body.
func renderArraySection(parts []string, elem value.Value) (string, error) {
	body, err := renderBody(elem)
	if err != nil {
		return "", err
	}
	return "[[" + renderKeyPath(parts) + "]]\n" + body, nil
}
