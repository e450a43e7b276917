package config

import "reflect"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		CallbackTimeout:   10000, // 10 seconds
		RequestTimeout:    3000,  // 3 seconds
		HostingEnabled:    boolPtr(false),
		CounterpartHeader: "FSPIOP-Source",
		OutboundMutualTLS: boolPtr(false),
		ValidateSSL:       boolPtr(true),
		ListenAddr:        ":4040",
		NotifyOn:          "always",
		Reporters:         []string{"console"},
		Verbose:           boolPtr(false),
		NoColor:           boolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.CallbackEndpoint == defaults.CallbackEndpoint &&
		c.CallbackTimeout == defaults.CallbackTimeout &&
		c.RequestTimeout == defaults.RequestTimeout &&
		c.GetHostingEnabled() == defaults.GetHostingEnabled() &&
		c.CounterpartHeader == defaults.CounterpartHeader &&
		len(c.CounterpartEndpoints) == 0 &&
		c.GetOutboundMutualTLS() == defaults.GetOutboundMutualTLS() &&
		c.TLS == nil &&
		c.OAuth2 == nil &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		len(c.Headers) == 0 &&
		c.RateLimit == defaults.RateLimit &&
		c.DefinitionsPath == defaults.DefinitionsPath &&
		c.ReportsDB == defaults.ReportsDB &&
		c.ListenAddr == defaults.ListenAddr &&
		len(c.Webhooks) == 0 &&
		c.SlackWebhook == defaults.SlackWebhook &&
		c.NotifyOn == defaults.NotifyOn &&
		reflect.DeepEqual(c.Reporters, defaults.Reporters) &&
		c.OutputDir == defaults.OutputDir &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor()
}
