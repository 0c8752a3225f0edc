package cli

import (
	"fmt"

	"github.com/warble-im/warble/history"
	"github.com/warble-im/warble/internal/config"
	"github.com/warble-im/warble/puppet"
	"github.com/warble-im/warble/puppet/irc"
	"github.com/warble-im/warble/puppet/mail"
	"github.com/warble-im/warble/puppet/memory"
	"github.com/warble-im/warble/puppet/remote"
)

// historyPath resolves the archive location from config, falling back to
// the standard data directory.
func historyPath(cfg config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return paths.History
}

// newRegistry wires every known puppet kind into a registry, closing the
// factories over the loaded configuration. The archive may be nil for
// kinds that do not need it; the irc factory rejects that.
func newRegistry(cfg config.Config, archive *history.Store) *puppet.Registry {
	reg := puppet.NewRegistry(log)

	reg.Register("memory", func() (puppet.Puppet, error) {
		return memory.New(cfg.Puppet.SelfID, log), nil
	})

	reg.Register("remote", func() (puppet.Puppet, error) {
		return remote.NewClient(cfg.Puppet.Remote.Endpoint, cfg.Puppet.Remote.Token, log), nil
	})

	reg.Register("irc", func() (puppet.Puppet, error) {
		if archive == nil {
			return nil, fmt.Errorf("irc puppet needs a history archive")
		}
		return irc.New(*cfg.Puppet.IRC, archive, log), nil
	})

	reg.Register("mail", func() (puppet.Puppet, error) {
		return mail.New(*cfg.Puppet.Mail, log), nil
	})

	return reg
}

// buildPuppet loads, validates, and constructs the configured puppet,
// returning the archive alongside so callers can close it.
func buildPuppet(cfg config.Config) (puppet.Puppet, *history.Store, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("creating data directories: %w", err)
	}

	archive, err := history.Open(historyPath(cfg), log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening history archive: %w", err)
	}

	p, err := newRegistry(cfg, archive).New(cfg.Puppet.Kind)
	if err != nil {
		archive.Close()
		return nil, nil, err
	}
	return p, archive, nil
}
