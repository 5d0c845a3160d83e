package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/service"
	"github.com/xiaot623/gogo/agentgate/internal/stream"
)

// ChatStream streams the reply as raw text chunks.
// POST /chat/stream
func (h *Handler) ChatStream(c echo.Context) error {
	turn, err := h.beginChat(c)
	if err != nil {
		return err
	}
	w := startStream(c)
	turn.Stream(c.Request().Context(), false, rawWriter(w))
	return nil
}

// ChatStreamEvents streams the reply as SSE records, one JSON ClientEvent per
// record.
// POST /chat/stream/events
func (h *Handler) ChatStreamEvents(c echo.Context) error {
	turn, err := h.beginChat(c)
	if err != nil {
		return err
	}
	w := startStream(c)
	turn.Stream(c.Request().Context(), true, sseWriter(w))
	return nil
}

func (h *Handler) beginChat(c echo.Context) (*service.Turn, error) {
	var req domain.ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidRequest, err)
	}
	return h.service.BeginChat(c.Request().Context(), req)
}

func startStream(c echo.Context) *echo.Response {
	w := c.Response()
	header := w.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	return w
}

// rawWriter writes chunk text as is. A terminal error is written as a final
// line of text; end writes nothing.
func rawWriter(w *echo.Response) stream.Emitter {
	return func(ev domain.ClientEvent) error {
		var text string
		switch ev.Type {
		case domain.ClientEventChunk:
			text = ev.Content
		case domain.ClientEventError:
			text = "\n" + ev.Message
		default:
			return nil
		}
		if text == "" {
			return nil
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		w.Flush()
		return nil
	}
}

func sseWriter(w *echo.Response) stream.Emitter {
	return func(ev domain.ClientEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		w.Flush()
		return nil
	}
}
