package server

import (
	"encoding/json"
)

// JSONCodec lets connect carry plain Go structs. It is registered under connect's "json"
// codec name, so clients use the application/json and application/connect+json types.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
