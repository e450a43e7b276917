package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.IsDefault())
	assert.Equal(t, 10000, cfg.CallbackTimeout)
	assert.Equal(t, ":4040", cfg.ListenAddr)
	assert.Equal(t, "FSPIOP-Source", cfg.CounterpartHeader)
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetHostingEnabled())

	cfg.ListenAddr = ":9999"
	assert.False(t, cfg.IsDefault())
}

func TestGettersWithNilPointers(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetHostingEnabled())
	assert.False(t, cfg.GetOutboundMutualTLS())
	assert.False(t, cfg.GetVerbose())
	assert.False(t, cfg.GetNoColor())
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "callspec.config.json",
			content: `{
				"callbackEndpoint": "http://sim:3000",
				"callbackTimeout": 2500,
				"hostingEnabled": true,
				"counterpartEndpoints": {"dfsp1": "http://dfsp1:4000"},
				"headers": {"X-Env": "test"}
			}`,
		},
		{
			name: "yaml",
			file: "callspec.config.yaml",
			content: `
callbackEndpoint: http://sim:3000
callbackTimeout: 2500
hostingEnabled: true
counterpartEndpoints:
  dfsp1: http://dfsp1:4000
headers:
  X-Env: test
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)

			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, "http://sim:3000", cfg.CallbackEndpoint)
			assert.Equal(t, 2500, cfg.CallbackTimeout)
			assert.True(t, cfg.GetHostingEnabled())
			assert.Equal(t, "http://dfsp1:4000", cfg.CounterpartEndpoints["dfsp1"])
			assert.Equal(t, "test", cfg.Headers["X-Env"])
			// unset fields keep their defaults
			assert.Equal(t, 3000, cfg.RequestTimeout)
			assert.Equal(t, ":4040", cfg.ListenAddr)
		})
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "callspec.config.json", `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault())

	writeFile(t, dir, "callspec.config.yml", "listenAddr: \":5050\"\n")
	cfg, err = FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ":5050", cfg.ListenAddr)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"A": "1"}

	merged := base.Merge(&Config{
		CallbackEndpoint: "http://override",
		ValidateSSL:      BoolPtr(false),
		Headers:          map[string]string{"B": "2"},
		Webhooks:         []string{"http://hook"},
	})

	assert.Equal(t, "http://override", merged.CallbackEndpoint)
	assert.False(t, merged.GetValidateSSL())
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, merged.Headers)
	assert.Equal(t, []string{"http://hook"}, merged.Webhooks)
	assert.Equal(t, 10000, merged.CallbackTimeout)

	// base is untouched
	assert.Equal(t, map[string]string{"A": "1"}, base.Headers)
	assert.True(t, base.GetValidateSSL())
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CallbackEndpoint = "http://sim:3000"
			cfg.RateLimit = 2.5

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveConfig(path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.CallbackEndpoint, loaded.CallbackEndpoint)
			assert.Equal(t, 2.5, loaded.RateLimit)
		})
	}
}

func TestDispatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CallbackEndpoint = "http://sim:3000"
	cfg.RateLimit = 5

	d := cfg.Dispatch()
	assert.Equal(t, "http://sim:3000", d.CallbackEndpoint)
	assert.Equal(t, 10*time.Second, d.CallbackTimeout)
	assert.Equal(t, 3*time.Second, d.RequestTimeout)
	assert.True(t, d.ValidateSSL)
	assert.False(t, d.MutualTLS)
	assert.Equal(t, 5.0, d.RateLimit)
	assert.NotNil(t, d.TLS)
}

func TestTLSSource(t *testing.T) {
	dir := t.TempDir()
	key := writeFile(t, dir, "client.key", "KEY")
	cert := writeFile(t, dir, "dfsp1.crt", "CERT")
	ca := writeFile(t, dir, "dfsp1-ca.crt", "CA")

	cfg := DefaultConfig()
	cfg.TLS = &TLSConfig{
		ClientKey: key,
		Counterparts: map[string]CounterpartTLS{
			"dfsp1": {ClientCert: cert, ServerCA: ca},
			"dfsp2": {ClientCert: cert, ServerCA: filepath.Join(dir, "missing.crt")},
		},
	}
	source := cfg.TLSSource()

	m, ok := source("dfsp1")
	require.True(t, ok)
	assert.Equal(t, []byte("CERT"), m.ClientCert)
	assert.Equal(t, []byte("KEY"), m.ClientKey)
	assert.Equal(t, []byte("CA"), m.ServerCA)

	_, ok = source("dfsp2")
	assert.False(t, ok)
	_, ok = source("unknown")
	assert.False(t, ok)

	_, ok = DefaultConfig().TLSSource()("dfsp1")
	assert.False(t, ok)
}
