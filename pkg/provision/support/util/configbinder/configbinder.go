// Package configbinder decodes loosely typed maps (YAML fragments, persisted item data)
// into typed structs and back, using the "yaml" struct tags as field names.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds a map of properties to a target struct using mapstructure.
// It uses the "yaml" tag for binding and allows weakly typed input (e.g., string to int conversion).
//
// Parameters:
//
//	properties: The map of properties to bind.
//	target: A pointer to the struct to bind the properties to.
//
// Returns:
//
//	An error if binding fails.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	if len(properties) == 0 {
		return nil
	}

	decoderConfig := &mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}

	return nil
}

// ToProperties flattens a struct into a property map keyed by its "yaml" tags.
// Nested structs become nested maps so the result round-trips through JSON unchanged.
func ToProperties(source interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if source == nil {
		return out, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(source); err != nil {
		return nil, fmt.Errorf("failed to convert %T to properties: %w", source, err)
	}

	for k, v := range out {
		nested, err := nestedProperties(v)
		if err != nil {
			return nil, err
		}
		out[k] = nested
	}
	return out, nil
}

func nestedProperties(v interface{}) (interface{}, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return v, nil
	}
	return ToProperties(rv.Interface())
}
