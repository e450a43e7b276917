package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/callspec/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/callspec/packages/dispatch"
	"github.com/abdul-hamid-achik/callspec/packages/http"
)

// Config represents the callspec configuration
type Config struct {
	CallbackEndpoint     string            `json:"callbackEndpoint,omitempty" yaml:"callbackEndpoint,omitempty"`
	CallbackTimeout      int               `json:"callbackTimeout,omitempty" yaml:"callbackTimeout,omitempty"` // milliseconds
	RequestTimeout       int               `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`   // milliseconds
	HostingEnabled       *bool             `json:"hostingEnabled,omitempty" yaml:"hostingEnabled,omitempty"`
	CounterpartHeader    string            `json:"counterpartHeader,omitempty" yaml:"counterpartHeader,omitempty"`
	CounterpartEndpoints map[string]string `json:"counterpartEndpoints,omitempty" yaml:"counterpartEndpoints,omitempty"`
	OutboundMutualTLS    *bool             `json:"outboundMutualTLS,omitempty" yaml:"outboundMutualTLS,omitempty"`
	TLS                  *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
	OAuth2               *oauth2.Config    `json:"oauth2,omitempty" yaml:"oauth2,omitempty"`
	ValidateSSL          *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	Proxy                string            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Headers              map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // Default headers for all requests
	RateLimit            float64           `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // requests per second, 0 means unlimited
	DefinitionsPath      string            `json:"definitionsPath,omitempty" yaml:"definitionsPath,omitempty"`
	ReportsDB            string            `json:"reportsDB,omitempty" yaml:"reportsDB,omitempty"`
	ListenAddr           string            `json:"listenAddr,omitempty" yaml:"listenAddr,omitempty"`
	Webhooks             []string          `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`
	SlackWebhook         string            `json:"slackWebhook,omitempty" yaml:"slackWebhook,omitempty"`
	NotifyOn             string            `json:"notifyOn,omitempty" yaml:"notifyOn,omitempty"`
	Reporters            []string          `json:"reporters,omitempty" yaml:"reporters,omitempty"`
	OutputDir            string            `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	Verbose              *bool             `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor              *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// TLSConfig points at PEM files for outbound mutual TLS. The client key
// is shared; certificates and CAs are per counterpart.
type TLSConfig struct {
	ClientKey    string                    `json:"clientKey,omitempty" yaml:"clientKey,omitempty"`
	Counterparts map[string]CounterpartTLS `json:"counterparts,omitempty" yaml:"counterparts,omitempty"`
}

type CounterpartTLS struct {
	ClientCert string `json:"clientCert,omitempty" yaml:"clientCert,omitempty"`
	ServerCA   string `json:"serverCA,omitempty" yaml:"serverCA,omitempty"`
}

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetHostingEnabled returns the hosting mode setting, defaulting to false
func (c *Config) GetHostingEnabled() bool {
	return getBool(c.HostingEnabled, false)
}

// GetOutboundMutualTLS returns whether outbound calls use mutual TLS, defaulting to false
func (c *Config) GetOutboundMutualTLS() bool {
	return getBool(c.OutboundMutualTLS, false)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".callspec.config.json",
	"callspec.config.json",
	"callspec.config.yaml",
	"callspec.config.yml",
	".callspecrc",
	".callspecrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file. Files
// ending in .yaml or .yml are read as YAML, everything else as JSON.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	return config, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.CallbackEndpoint != "" {
		result.CallbackEndpoint = other.CallbackEndpoint
	}
	if other.CallbackTimeout > 0 {
		result.CallbackTimeout = other.CallbackTimeout
	}
	if other.RequestTimeout > 0 {
		result.RequestTimeout = other.RequestTimeout
	}
	if other.CounterpartHeader != "" {
		result.CounterpartHeader = other.CounterpartHeader
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.DefinitionsPath != "" {
		result.DefinitionsPath = other.DefinitionsPath
	}
	if other.ReportsDB != "" {
		result.ReportsDB = other.ReportsDB
	}
	if other.ListenAddr != "" {
		result.ListenAddr = other.ListenAddr
	}
	if other.SlackWebhook != "" {
		result.SlackWebhook = other.SlackWebhook
	}
	if other.NotifyOn != "" {
		result.NotifyOn = other.NotifyOn
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.TLS != nil {
		result.TLS = other.TLS
	}
	if other.OAuth2 != nil {
		result.OAuth2 = other.OAuth2
	}

	// Boolean flags - only override if explicitly set in other config
	if other.HostingEnabled != nil {
		result.HostingEnabled = other.HostingEnabled
	}
	if other.OutboundMutualTLS != nil {
		result.OutboundMutualTLS = other.OutboundMutualTLS
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	result.Headers = mergeMap(result.Headers, other.Headers)
	result.CounterpartEndpoints = mergeMap(result.CounterpartEndpoints, other.CounterpartEndpoints)

	if len(other.Webhooks) > 0 {
		result.Webhooks = other.Webhooks
	}
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	return &result
}

func mergeMap(base, other map[string]string) map[string]string {
	if len(other) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(other))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Dispatch converts the configuration into dispatcher settings.
func (c *Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		CallbackEndpoint:     c.CallbackEndpoint,
		CallbackTimeout:      time.Duration(c.CallbackTimeout) * time.Millisecond,
		RequestTimeout:       time.Duration(c.RequestTimeout) * time.Millisecond,
		HostingEnabled:       c.GetHostingEnabled(),
		CounterpartEndpoints: c.CounterpartEndpoints,
		MutualTLS:            c.GetOutboundMutualTLS(),
		TLS:                  c.TLSSource(),
		ValidateSSL:          c.GetValidateSSL(),
		Proxy:                c.Proxy,
		DefaultHeaders:       c.Headers,
		RateLimit:            c.RateLimit,
	}
}

// TLSSource reads the PEM files configured for a counterpart. Files are
// read on every call so rotated certificates are picked up.
func (c *Config) TLSSource() dispatch.TLSSource {
	tlsCfg := c.TLS
	return func(counterpart string) (*http.TLSMaterial, bool) {
		if tlsCfg == nil || tlsCfg.ClientKey == "" {
			return nil, false
		}
		files, ok := tlsCfg.Counterparts[counterpart]
		if !ok {
			return nil, false
		}
		key, err := os.ReadFile(tlsCfg.ClientKey)
		if err != nil {
			return nil, false
		}
		cert, err := os.ReadFile(files.ClientCert)
		if err != nil {
			return nil, false
		}
		ca, err := os.ReadFile(files.ServerCA)
		if err != nil {
			return nil, false
		}
		m := &http.TLSMaterial{ClientCert: cert, ClientKey: key, ServerCA: ca}
		return m, m.Complete()
	}
}
