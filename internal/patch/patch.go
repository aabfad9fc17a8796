// Package patch models JSON merge-patch fields that distinguish an absent
// key from an explicit null.
package patch

import (
	"bytes"
	"encoding/json"
)

// Field is one member of a partial update.
//
//	{}                 Set=false
//	{"x": null}        Set=true, Value=nil
//	{"x": "v"}         Set=true, Value=&"v"
type Field[T any] struct {
	Set   bool
	Value *T
}

// Of returns a Field set to v.
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: &v}
}

// Null returns a Field explicitly set to null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true}
}

// IsNull reports whether the key was present with a null value.
func (f Field[T]) IsNull() bool {
	return f.Set && f.Value == nil
}

// UnmarshalJSON is only invoked when the key is present.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// MarshalJSON writes null for unset and null fields.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.Value)
}
