package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Puppet: PuppetConfig{
			Kind:   "memory",
			SelfID: "warble",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:9301",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for the selected puppet kind.
func Validate(cfg Config) error {
	switch cfg.Puppet.Kind {
	case "memory":
	case "remote":
		if cfg.Puppet.Remote.Endpoint == "" {
			return &ConfigError{Message: "remote puppet requires puppet.remote.endpoint"}
		}
	case "irc":
		if cfg.Puppet.IRC == nil || cfg.Puppet.IRC.Server == "" || cfg.Puppet.IRC.Nick == "" {
			return &ConfigError{Message: "irc puppet requires puppet.irc.server and puppet.irc.nick"}
		}
	case "mail":
		if cfg.Puppet.Mail == nil || cfg.Puppet.Mail.Host == "" || cfg.Puppet.Mail.Username == "" {
			return &ConfigError{Message: "mail puppet requires puppet.mail.host and puppet.mail.username"}
		}
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown puppet kind %q", cfg.Puppet.Kind)}
	}
	return nil
}
