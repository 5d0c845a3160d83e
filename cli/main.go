// Package main provides a terminal chat client for the agentgate WebSocket
// endpoint.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Client is a WebSocket chat client.
type Client struct {
	conn     *websocket.Conn
	userID   string
	threadID string
	verbose  bool
}

// NewClient connects to the server.
func NewClient(addr, userID, threadID string, verbose bool) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn, userID: userID, threadID: threadID, verbose: verbose}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Send sends one chat turn.
func (c *Client) Send(content string) error {
	return c.conn.WriteJSON(domain.ChatRequest{
		Message:  content,
		UserID:   c.userID,
		ThreadID: c.threadID,
	})
}

// ReadTurn prints events until the turn's terminal event arrives.
func (c *Client) ReadTurn() error {
	for {
		var ev domain.ClientEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.print(ev)
		if ev.Type.IsTerminal() {
			return nil
		}
	}
}

func (c *Client) print(ev domain.ClientEvent) {
	switch ev.Type {
	case domain.ClientEventChunk:
		fmt.Print(ev.Content)
	case domain.ClientEventReasoning:
		if c.verbose {
			fmt.Printf("\n  (thinking) %s\n", ev.Content)
		}
	case domain.ClientEventTool:
		if c.verbose && ev.Data != nil {
			fmt.Printf("\n  [%s %s] %s\n", ev.Data.ToolName, ev.Data.Phase, ev.Data.Summary)
		}
	case domain.ClientEventContext:
		if c.verbose && ev.Data != nil && ev.Data.Context != nil {
			usage := ev.Data.Context
			if usage.Compaction != nil {
				fmt.Printf("\n  [context] compacted %d -> %d messages\n", usage.Compaction.Before, usage.Compaction.After)
			} else {
				fmt.Printf("\n  [context] %d messages, %d prompt tokens\n", usage.Messages, usage.PromptTokens)
			}
		}
	case domain.ClientEventStart:
		if c.verbose {
			fmt.Printf("  run %s\n", ev.RunID)
		}
	case domain.ClientEventEnd:
		fmt.Println()
	case domain.ClientEventError:
		fmt.Printf("\nerror: %s\n", ev.Message)
	}
}

func main() {
	addr := pflag.String("addr", "ws://localhost:8000/chat/ws", "WebSocket server address")
	userID := pflag.StringP("user", "u", "cli", "user id")
	threadID := pflag.StringP("thread", "t", "", "thread id (defaults to the user id)")
	verbose := pflag.BoolP("verbose", "v", false, "show tool and reasoning events")
	pflag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr, *userID, *threadID, *verbose)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected. Type a message and press Enter to send.")
	fmt.Println("Commands: /quit to exit")
	fmt.Println()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		client.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			fmt.Println("Bye!")
			return
		}

		if err := client.Send(input); err != nil {
			log.Printf("Send error: %v", err)
			return
		}
		if err := client.ReadTurn(); err != nil {
			log.Printf("Read error: %v", err)
			return
		}
	}
}
