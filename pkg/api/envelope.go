package api

import (
	"bytes"
	"encoding/json"
)

// envelope is the backend's usual response wrapper. Some endpoints return
// bare arrays or bare objects instead; decodeEnvelope tolerates both by
// treating the whole body as Data when it does not parse as a wrapper.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rejected reports whether the wrapper explicitly flags a failure.
func (e envelope) rejected() bool {
	return e.Success != nil && !*e.Success
}

// decodeEnvelope parses a response body into an envelope. Bodies that are
// bare arrays, or objects without any wrapper keys, come back with the whole
// body as Data so callers decode them uniformly.
func decodeEnvelope(body []byte) envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return envelope{Success: nil, Code: 0, Message: "", Data: nil}
	}

	// Bare array: no wrapper to parse.
	if trimmed[0] == '[' {
		return envelope{Success: nil, Code: 0, Message: "", Data: trimmed}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{Success: nil, Code: 0, Message: "", Data: nil}
	}

	// An object without a data key is its own payload (e.g. the monitor
	// snapshot and the progress endpoint on some backend revisions).
	if env.Data == nil {
		env.Data = trimmed
	}

	return env
}

// pagedItems mirrors the backend's {items, total} page shape.
type pagedItems struct {
	Items json.RawMessage `json:"items"`
	Total int             `json:"total"`
}

// decodeList decodes a payload that is either an {items, total} page or a
// bare array. Anything else degrades to an empty list.
func decodeList[T any](raw json.RawMessage) ([]T, int) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []T{}, 0
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return []T{}, 0
		}

		return items, len(items)
	}

	var page pagedItems
	if err := json.Unmarshal(trimmed, &page); err != nil || page.Items == nil {
		return []T{}, 0
	}

	var items []T
	if err := json.Unmarshal(page.Items, &items); err != nil {
		return []T{}, 0
	}

	total := page.Total
	if total < len(items) {
		total = len(items)
	}

	return items, total
}
