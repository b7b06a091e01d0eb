package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// bindArgs decodes a tool's argument map into target using its json tags.
// MCP clients send numbers as float64 and the CLI sends everything as
// strings, so input is weakly typed: "5", 5 and 5.0 all bind to an int.
func bindArgs[T any](args map[string]any, target *T) error {
	numberHook := func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return data, nil
		}
		if k := t.Kind(); k >= reflect.Int && k <= reflect.Float64 {
			var n json.Number
			if err := json.Unmarshal([]byte(raw), &n); err != nil {
				return nil, fmt.Errorf("%q is not a number", raw)
			}
			return n, nil
		}
		return data, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       numberHook,
		Result:           target,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}

// requireString returns the trimmed value of a required string parameter.
func requireString(key, val string) (string, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return val, nil
}

// clampInt returns defaultVal when val is nil, otherwise val clamped to [lo, hi].
func clampInt(val *int, defaultVal, lo, hi int) int {
	if val == nil {
		return defaultVal
	}
	return min(max(*val, lo), hi)
}

// enumArg returns val lowercased, or defaultVal when empty. Values outside
// allowed are an error naming the accepted set.
func enumArg(key, val, defaultVal string, allowed []string) (string, error) {
	val = strings.ToLower(strings.TrimSpace(val))
	if val == "" {
		return defaultVal, nil
	}
	for _, a := range allowed {
		if val == a {
			return val, nil
		}
	}
	return "", fmt.Errorf("invalid %s: %s (must be one of: %s)", key, val, strings.Join(allowed, ", "))
}
