package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// MarshalJSON flattens the envelope and type-specific fields into one
// object, matching spec.md §6: "each line is a JSON object with at minimum
// ts, event_type, run_id, exec_id" plus type-specific fields alongside them.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat["ts"] = e.Ts
	flat["event_type"] = e.EventType
	flat["run_id"] = e.RunID
	flat["exec_id"] = e.ExecID
	return canonicalJSON(flat)
}

// timestampKeys are stripped recursively by canonicalise (spec.md §4.12).
var timestampKeys = map[string]bool{
	"ts":          true,
	"timestamp":   true,
	"received_at": true,
}

// toMap round-trips v through JSON to obtain a canonical, type-erased
// representation (maps, slices, strings, float64/json.Number, bool, nil).
func toMap(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalisation: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode for canonicalisation: %w", err)
	}
	return out, nil
}

// stripTimestamps recursively removes timestamp-valued keys from maps.
func stripTimestamps(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if timestampKeys[k] {
				continue
			}
			out[k] = stripTimestamps(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = stripTimestamps(child)
		}
		return out
	default:
		return val
	}
}

// Canonicalise renders e with every timestamp-valued field removed
// recursively, ready for deterministic hashing (spec.md §4.12).
func Canonicalise(e Event) (interface{}, error) {
	m, err := toMap(e)
	if err != nil {
		return nil, err
	}
	return stripTimestamps(m), nil
}

// canonicalJSON serialises v with sorted object keys and all non-ASCII
// runes escaped, so hashing never depends on map-iteration order or on
// encoding-dependent byte sequences (spec.md §4.11, §9 determinism hazards).
func canonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return asciiEscape(buf.Bytes()), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

// asciiEscape rewrites any byte sequence outside the printable ASCII range
// as a \uXXXX escape within string literals, per spec.md §4.11 "ASCII".
func asciiEscape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	inString := false
	for i := 0; i < len(b); {
		c := b[i]
		if c == '"' {
			inString = !inString
			out = append(out, c)
			i++
			continue
		}
		if inString && c == '\\' && i+1 < len(b) {
			out = append(out, c, b[i+1])
			i += 2
			continue
		}
		if inString && c >= 0x80 {
			r, size := utf8.DecodeRune(b[i:])
			out = append(out, []byte(fmt.Sprintf(`\u%04x`, r))...)
			i += size
			continue
		}
		out = append(out, c)
		i++
	}
	return out
}
