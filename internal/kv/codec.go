package kv

import "encoding/json"

// Encode serializes a domain record to the store's string representation.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode unmarshals raw into v. Some key-value client libraries serialize
// values a second time on write, so a stored record can come back as a
// JSON string wrapping the actual JSON. When the first pass fails, one
// string layer is unwrapped and the decode retried, which keeps decoding
// idempotent whichever form the store hands back.
func Decode(raw string, v any) error {
	firstErr := json.Unmarshal([]byte(raw), v)
	if firstErr == nil {
		return nil
	}
	var wrapped string
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
		return json.Unmarshal([]byte(wrapped), v)
	}
	return firstErr
}
