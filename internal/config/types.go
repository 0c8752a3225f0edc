package config

// Config is the root configuration for warble.
type Config struct {
	Puppet  PuppetConfig  `yaml:"puppet,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// PuppetConfig selects and configures the backend puppet.
type PuppetConfig struct {
	Kind   string       `yaml:"kind,omitempty"`   // "memory" | "remote" | "irc" | "mail"
	SelfID string       `yaml:"selfId,omitempty"` // session identity for the memory puppet
	Remote RemoteConfig `yaml:"remote,omitempty"`
	IRC    *IRCConfig   `yaml:"irc,omitempty"`
	Mail   *MailConfig  `yaml:"mail,omitempty"`
}

// RemoteConfig points at a remote puppet server.
type RemoteConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"` // ws://host:port/ws
	Token    string `yaml:"token,omitempty"`
}

// IRCConfig defines IRC puppet settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// MailConfig defines IMAP mail puppet settings.
type MailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port,omitempty"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password,omitempty"`
	Mailbox     string `yaml:"mailbox,omitempty"`
	PollSeconds int    `yaml:"pollSeconds,omitempty"`
}

// ServerConfig controls `warble serve`, which exposes the configured
// puppet over WebSocket.
type ServerConfig struct {
	Addr  string `yaml:"addr,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// HistoryConfig controls the local message archive.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}
