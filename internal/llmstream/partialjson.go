package llmstream

import "encoding/json"

// repairPartialJSON implements spec.md §4.7's best-effort repair of a
// truncated JSON fragment: a stateless, single-pass, stack-based scan that
// closes any open '"', '{', '[' with their matching '"', '}', ']' in LIFO
// order, respecting backslash escapes and string context. It never fails;
// callers still attempt json.Unmarshal on the result and treat failure as
// "not yet repairable".
func repairPartialJSON(b []byte) []byte {
	var closers []byte
	inString := false
	escaped := false

	for _, c := range b {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if n := len(closers); n > 0 && closers[n-1] == c {
				closers = closers[:n-1]
			}
		}
	}

	out := make([]byte, len(b), len(b)+len(closers)+1)
	copy(out, b)
	if inString {
		out = append(out, '"')
	}
	for i := len(closers) - 1; i >= 0; i-- {
		out = append(out, closers[i])
	}
	return out
}

// finalizeArguments implements the final-coalescence recovery path of
// spec.md §4.7: if the accumulated argument bytes do not parse as a single
// JSON object, first try the same stack-based repair used for UI ticks
// (covers a turn that ended mid-object), then try bracket-wrapping
// "}{"-adjacent concatenations into an array (covers a model that emitted
// more than one JSON object back to back for a single call) and
// de-duplicating identical objects. Tool calls that remain unparseable
// after both attempts are reported as dropped; the caller counts them but
// never surfaces an error to the model (spec.md §9, §7 item 3).
func finalizeArguments(raw []byte) (objects []string, dropped bool) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 {
		return []string{"{}"}, false
	}

	if isValidObject(trimmed) {
		return []string{string(trimmed)}, false
	}

	repaired := repairPartialJSON(trimmed)
	if isValidObject(repaired) {
		return []string{string(repaired)}, false
	}

	wrapped := wrapConcatenatedObjects(trimmed)
	var arr []json.RawMessage
	if err := json.Unmarshal(wrapped, &arr); err == nil && len(arr) > 0 {
		seen := make(map[string]bool, len(arr))
		for _, item := range arr {
			var v any
			if err := json.Unmarshal(item, &v); err != nil {
				continue
			}
			canon, err := json.Marshal(v)
			if err != nil {
				continue
			}
			key := string(canon)
			if seen[key] {
				continue
			}
			seen[key] = true
			objects = append(objects, string(item))
		}
		if len(objects) > 0 {
			return objects, false
		}
	}

	return nil, true
}

func isValidObject(b []byte) bool {
	var m map[string]any
	return json.Unmarshal(b, &m) == nil
}

// wrapConcatenatedObjects inserts a comma at every "}{" boundary and wraps
// the result in array brackets, turning `{"a":1}{"a":1}` into
// `[{"a":1},{"a":1}]` so it can be parsed as a JSON array of objects.
func wrapConcatenatedObjects(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	out = append(out, '[')
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == '}' && i+1 < len(b) && b[i+1] == '{' {
			out = append(out, ',')
		}
	}
	out = append(out, ']')
	return out
}
