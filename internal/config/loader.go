package config

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Server.Token = expandEnvVars(cfg.Server.Token)
	cfg.Puppet.Remote.Token = expandEnvVars(cfg.Puppet.Remote.Token)
	if cfg.Puppet.IRC != nil {
		cfg.Puppet.IRC.Password = expandEnvVars(cfg.Puppet.IRC.Password)
	}
	if cfg.Puppet.Mail != nil {
		cfg.Puppet.Mail.Password = expandEnvVars(cfg.Puppet.Mail.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Puppet.Kind == "" {
		cfg.Puppet.Kind = "memory"
	}
	if cfg.Puppet.SelfID == "" {
		cfg.Puppet.SelfID = "warble"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:9301"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Puppet.Mail != nil {
		if cfg.Puppet.Mail.Mailbox == "" {
			cfg.Puppet.Mail.Mailbox = "INBOX"
		}
		if cfg.Puppet.Mail.PollSeconds == 0 {
			cfg.Puppet.Mail.PollSeconds = 30
		}
	}
}

// applyEnvOverrides reads WARBLE_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARBLE_PUPPET"); v != "" {
		cfg.Puppet.Kind = strings.ToLower(v)
	}
	if v := os.Getenv("WARBLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("WARBLE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WARBLE_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}
