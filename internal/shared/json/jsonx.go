// Package jsonx is the JSON codec for the engine, backed by goccy/go-json,
// plus lenient decoding for language model output.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	Valid         = json.Valid
)
