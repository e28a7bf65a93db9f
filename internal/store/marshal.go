package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stratumdb/stratum/internal/resource"
)

// encodeAttrs serializes an attribute map to canonical JSON for the
// file-backed engines. Canonical form keeps stored bytes deterministic:
// the same map always encodes identically, so golden traces and on-disk
// diffs stay stable.
func encodeAttrs(attrs Attrs) ([]byte, error) {
	data, err := resource.MarshalCanonical(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attrs: %w", err)
	}
	return data, nil
}

// decodeAttrs parses stored canonical JSON back into an attribute map.
// Numbers decode through json.Number so integers beyond 2^53 survive
// instead of collapsing into float64.
func decodeAttrs(data []byte) (Attrs, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}
	for name, v := range raw {
		if n, ok := v.(json.Number); ok {
			raw[name] = normalizeNumber(n)
		}
	}
	return raw, nil
}

// normalizeNumber maps a JSON number onto the scalar carriers: int64 when
// the text is integral, float64 otherwise.
func normalizeNumber(n json.Number) any {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		// Unreachable for anything encodeAttrs produced; surface the
		// raw text rather than invent a value.
		return n.String()
	}
	return f
}
