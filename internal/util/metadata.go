package util

import (
	"encoding/json"

	"github.com/amit7itz/goset"
)

// MetadataKeys extracts the label or annotation keys from a raw admission
// object without decoding it as a concrete kind, so the caller works for
// any resource. Returns an empty set for objects without metadata or for
// undecodable input.
func MetadataKeys(raw []byte, field string) *goset.Set[string] {
	keys := goset.NewSet[string]()
	if len(raw) == 0 {
		return keys
	}

	var obj struct {
		Metadata map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return keys
	}

	entries := map[string]string{}
	if err := json.Unmarshal(obj.Metadata[field], &entries); err != nil {
		return keys
	}
	for key := range entries {
		keys.Add(key)
	}
	return keys
}
