package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the default output layout of time.now.
const TimeLayout = "2006-01-02 15:04:05"

func init() {
	MustRegister(Tool{
		Name:        "time.now",
		Description: "Get the current date and time. Use when the user asks what time or date it is.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "IANA time zone name, e.g. Asia/Shanghai. Defaults to the server zone.",
				},
			},
		},
		Exec: currentTime(time.Now),
	})
	MustRegister(Tool{
		Name:        "echo",
		Description: "Repeat the given text back unchanged.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			"required": []string{"text"},
		},
		Exec: echo,
	})
}

func currentTime(now func() time.Time) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Timezone string `json:"timezone"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		t := now()
		if in.Timezone != "" {
			loc, err := time.LoadLocation(in.Timezone)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q", in.Timezone)
			}
			t = t.In(loc)
		}
		return json.Marshal(map[string]string{
			"current_time": t.Format(TimeLayout),
			"timezone":     t.Location().String(),
		})
	}
}

func echo(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Text == nil {
		return nil, fmt.Errorf("text is required")
	}
	return json.Marshal(map[string]string{"text": *in.Text})
}
