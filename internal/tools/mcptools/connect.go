package mcptools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
)

// Set is the connected MCP servers.
type Set []*Client

// Connect dials every configured server and registers its tools. A server that
// cannot be reached is logged and skipped.
func Connect(ctx context.Context, servers []config.MCPServerConfig, registry *tools.Registry, logger *slog.Logger) Set {
	if logger == nil {
		logger = slog.Default()
	}

	var set Set
	for _, server := range servers {
		c, err := Dial(ctx, server, logger)
		if err != nil {
			logger.Warn("mcp server unavailable", "server", server.Name, "err", err)
			continue
		}
		names, err := c.Register(ctx, registry)
		if err != nil {
			logger.Warn("mcp tools not registered", "server", server.Name, "err", err)
		}
		if len(names) == 0 {
			c.Close()
			continue
		}
		logger.Info("mcp tools registered", "server", server.Name, "tools", names)
		set = append(set, c)
	}
	return set
}

// Close closes every client.
func (s Set) Close() error {
	var errs []error
	for _, c := range s {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
