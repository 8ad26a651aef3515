package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/dreamsxin/memrecycle/config"
	"github.com/dreamsxin/memrecycle/ipc"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	configPath string
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) resolvedConfigPath() string {
	var flag string
	if c.configFlag != nil {
		flag = *c.configFlag
	}
	return config.ResolvePath(flag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.configPath = c.resolvedConfigPath()
		cfg, err := config.Load(c.configPath)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil {
		if p := strings.TrimSpace(*c.socketFlag); p != "" {
			return p
		}
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Runtime.SocketPath
	}
	return config.Default().Runtime.SocketPath
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("memrecycle daemon is not running (socket %s); start it with 'memrecycle run'", socket)
		}
		return nil, fmt.Errorf("connect to daemon at %s: %w", socket, err)
	}
	return client, nil
}
