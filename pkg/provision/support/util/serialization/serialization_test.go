package serialization_test

import (
	"testing"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/serialization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecrets_Nested(t *testing.T) {
	in := map[string]interface{}{
		"email":          "jane@example.com",
		"password":       "Sup3r$ecretPass",
		"password_token": "sealed",
		"smtp": map[string]interface{}{
			"host":     "smtp.example.com",
			"password": "inner",
		},
		"items": []interface{}{map[string]interface{}{"API_KEY": "k"}},
	}

	out := serialization.MaskSecrets(in, []string{"password", "api_key"})

	assert.Equal(t, "jane@example.com", out["email"])
	assert.Equal(t, serialization.MaskValue, out["password"])
	assert.Equal(t, serialization.MaskValue, out["password_token"])
	assert.Equal(t, serialization.MaskValue, out["smtp"].(map[string]interface{})["password"])
	assert.Equal(t, "smtp.example.com", out["smtp"].(map[string]interface{})["host"])
	assert.Equal(t, serialization.MaskValue, out["items"].([]interface{})[0].(map[string]interface{})["API_KEY"])

	// Input is not mutated.
	assert.Equal(t, "inner", in["smtp"].(map[string]interface{})["password"])
}

func TestMaskSecrets_DefaultKeys(t *testing.T) {
	out := serialization.MaskSecrets(map[string]interface{}{"secret": "s", "name": "n"}, nil)
	assert.Equal(t, serialization.MaskValue, out["secret"])
	assert.Equal(t, "n", out["name"])
}

func TestMarshalUnmarshalMap(t *testing.T) {
	data, err := serialization.MarshalMap(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	m, err := serialization.UnmarshalMap([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = serialization.UnmarshalMap([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])

	_, err = serialization.UnmarshalMap([]byte(`{broken`))
	assert.Error(t, err)
}

func TestMarshalMasked(t *testing.T) {
	data, err := serialization.MarshalMasked(map[string]interface{}{"api_key": "k"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_key":"********"}`, string(data))
}
