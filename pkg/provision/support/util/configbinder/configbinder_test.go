package configbinder_test

import (
	"testing"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/configbinder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type target struct {
	Name    string        `yaml:"name"`
	Limit   int           `yaml:"limit"`
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	SMTP    endpoint      `yaml:"smtp"`
	IMAP    *endpoint     `yaml:"imap,omitempty"`
}

func TestBindProperties_WeaklyTyped(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{
		"name":    "warmup",
		"limit":   "40",
		"enabled": "true",
		"timeout": "1500ms",
		"smtp":    map[string]interface{}{"host": "smtp.example.com", "port": "587"},
	}, &got)

	require.NoError(t, err)
	assert.Equal(t, "warmup", got.Name)
	assert.Equal(t, 40, got.Limit)
	assert.True(t, got.Enabled)
	assert.Equal(t, 1500*time.Millisecond, got.Timeout)
	assert.Equal(t, 587, got.SMTP.Port)
	assert.Nil(t, got.IMAP)
}

func TestBindProperties_ErrorNamesTarget(t *testing.T) {
	var got target
	err := configbinder.BindProperties(map[string]interface{}{"limit": "many"}, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "struct target")
}

func TestToPropertiesRoundTrip(t *testing.T) {
	src := target{Name: "a", Limit: 3, SMTP: endpoint{Host: "h", Port: 25}, IMAP: &endpoint{Host: "i", Port: 993}}

	props, err := configbinder.ToProperties(src)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"host": "h", "port": 25}, props["smtp"])
	assert.Equal(t, map[string]interface{}{"host": "i", "port": 993}, props["imap"])

	var back target
	require.NoError(t, configbinder.BindProperties(props, &back))
	assert.Equal(t, src, back)
}
