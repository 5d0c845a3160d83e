// Package mcptools offers tools served by remote MCP servers through the
// tool registry. Each remote tool is registered as "<server>.<tool>".
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/tools"
)

const (
	clientName    = "agentgate"
	clientVersion = "0.1.0"
)

// Client is an initialized connection to one MCP server.
type Client struct {
	name    string
	mcp     *client.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Dial opens the configured transport and performs the MCP handshake.
func Dial(ctx context.Context, cfg config.MCPServerConfig, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   *client.Client
		err error
	)
	switch cfg.Transport {
	case config.MCPTransportStdio:
		c, err = client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	case config.MCPTransportHTTP:
		c, err = client.NewStreamableHttpClient(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
	case config.MCPTransportSSE:
		c, err = client.NewSSEMCPClient(cfg.URL, transport.WithHeaders(cfg.Headers))
	}
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: %w", cfg.Name, err)
	}
	return newClient(ctx, cfg.Name, c, cfg.Timeout, logger)
}

func newClient(ctx context.Context, name string, c *client.Client, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp server %q: start: %w", name, err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	info, err := c.Initialize(ctx, init)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp server %q: initialize: %w", name, err)
	}
	logger.Info("mcp server connected",
		"server", name,
		"remote", info.ServerInfo.Name,
		"version", info.ServerInfo.Version)

	return &Client{
		name:    name,
		mcp:     c,
		timeout: timeout,
		logger:  logger.With("server", name),
	}, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Register lists the server's tools and adds them to registry. It returns the
// registered names.
func (c *Client) Register(ctx context.Context, registry *tools.Registry) ([]string, error) {
	list, err := c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: list tools: %w", c.name, err)
	}

	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		if tool.Name == "" {
			continue
		}
		params, err := inputSchema(tool)
		if err != nil {
			c.logger.Warn("skipping mcp tool with unreadable schema", "tool", tool.Name, "err", err)
			continue
		}
		name := c.name + "." + tool.Name
		if err := registry.Register(tools.Tool{
			Name:        name,
			Description: tool.Description,
			Parameters:  params,
			Exec:        c.executor(tool.Name),
		}); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Close shuts the transport down.
func (c *Client) Close() error {
	return c.mcp.Close()
}

func (c *Client) executor(remote string) tools.ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		var arguments map[string]any
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = remote
		req.Params.Arguments = arguments
		res, err := c.mcp.CallTool(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("mcp call %s.%s: %w", c.name, remote, err)
		}

		text := resultText(res)
		if res.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return nil, errors.New(text)
		}
		return json.Marshal(text)
	}
}

// resultText joins the text parts of a tool result. Non-text parts are noted
// by type only.
func resultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("[%T omitted]", content))
	}
	return strings.Join(parts, "\n")
}

func inputSchema(tool mcp.Tool) (map[string]interface{}, error) {
	raw := tool.RawInputSchema
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(tool.InputSchema); err != nil {
			return nil, err
		}
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if params["type"] == nil {
		params["type"] = "object"
	}
	if params["properties"] == nil {
		params["properties"] = map[string]interface{}{}
	}
	return params, nil
}
