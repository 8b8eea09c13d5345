package store

import (
	"fmt"

	"github.com/roach88/weft/internal/ir"
)

// marshalValue converts any plain value to canonical JSON TEXT for storage.
func marshalValue(what string, v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// unmarshalValue parses stored JSON TEXT. Integral numbers come back as int.
func unmarshalValue(what, data string) (any, error) {
	v, err := ir.Decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return v, nil
}

func unmarshalList(what, data string) ([]any, error) {
	v, err := unmarshalValue(what, data)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal %s: want array, got %T", what, v)
	}
	return list, nil
}

func unmarshalObject(what, data string) (map[string]any, error) {
	v, err := unmarshalValue(what, data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal %s: want object, got %T", what, v)
	}
	return obj, nil
}
