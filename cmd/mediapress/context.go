package main

import (
	"strings"
	"sync"

	"mediapress/internal/config"
)

// commandContext resolves configuration lazily and shares the API client
// across subcommands.
type commandContext struct {
	serverFlag *string
	configFlag *string
	tokenFlag  *string

	once sync.Once
	cfg  *config.Config
	err  error
}

func newCommandContext(serverFlag, configFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		c.cfg, _, _, c.err = config.Load(strings.TrimSpace(*c.configFlag))
	})
	return c.cfg, c.err
}

// client builds an API client from flags, falling back to the configured
// bind address.
func (c *commandContext) client() (*apiClient, error) {
	server := strings.TrimSpace(*c.serverFlag)
	token := strings.TrimSpace(*c.tokenFlag)
	if server == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		if server == "" {
			server = cfg.Paths.APIBind
		}
		if token == "" {
			token = cfg.Paths.APIToken
		}
	}
	return newAPIClient(server, token), nil
}
