// Package serialization converts the loosely typed maps persisted by the ledger
// (item data, result data, input snapshots) to and from JSON, masking secrets on the way out.
package serialization

import (
	"encoding/json"
	"strings"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
	logger "github.com/tigerroll/provisioner/pkg/provision/support/util/logger"
)

const module = "serialization"

// MaskValue replaces masked values.
const MaskValue = "********"

// DefaultMaskedKeys are masked when no keys are configured.
var DefaultMaskedKeys = []string{"password", "api_key", "secret", "token"}

// MaskSecrets returns a deep copy of data in which every key whose name contains one of
// maskedKeys (case-insensitive) is replaced by MaskValue. Nested maps and slices are walked.
func MaskSecrets(data map[string]interface{}, maskedKeys []string) map[string]interface{} {
	if len(maskedKeys) == 0 {
		maskedKeys = DefaultMaskedKeys
	}
	if data == nil {
		return map[string]interface{}{}
	}
	return maskMap(data, maskedKeys)
}

func maskMap(in map[string]interface{}, keys []string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if isMaskedKey(k, keys) {
			out[k] = MaskValue
			continue
		}
		out[k] = maskValue(v, keys)
	}
	return out
}

func maskValue(v interface{}, keys []string) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return maskMap(typed, keys)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, e := range typed {
			out[i] = maskValue(e, keys)
		}
		return out
	default:
		return v
	}
}

func isMaskedKey(key string, keys []string) bool {
	lower := strings.ToLower(key)
	for _, k := range keys {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// MarshalMap serializes a map into a JSON byte slice. A nil map becomes "{}".
func MarshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		logger.Errorf("Failed to serialize map: %v", err)
		return nil, exception.NewBatchError(module, exception.KindUnknown, "failed to serialize map", err)
	}
	return data, nil
}

// UnmarshalMap deserializes a JSON byte slice into a fresh map.
// Empty input and JSON null produce an empty map.
func UnmarshalMap(data []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(data) == 0 || string(data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Errorf("Failed to deserialize map: %v", err)
		return nil, exception.NewBatchError(module, exception.KindUnknown, "failed to deserialize map", err)
	}
	return out, nil
}

// MarshalMasked masks secrets in m and serializes the result.
func MarshalMasked(m map[string]interface{}, maskedKeys []string) ([]byte, error) {
	return MarshalMap(MaskSecrets(m, maskedKeys))
}
