package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikesmullin/slack/pkg/bus"
	"github.com/mikesmullin/slack/pkg/logger"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Stream reads live message frames from the bridge's websocket and
// publishes them onto the event bus. It reconnects with capped
// backoff until the context is cancelled.
type Stream struct {
	url string
	bus *bus.EventBus
	log logger.Logger
}

func NewStream(baseURL string, b *bus.EventBus) *Stream {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	return &Stream{
		url: wsURL,
		bus: b,
		log: logger.Component("stream"),
	}
}

// Run blocks, feeding the bus until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	backoff := reconnectBase

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("websocket dial failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		s.log.Info().Str("url", s.url).Msg("event stream connected")
		backoff = reconnectBase
		s.readLoop(ctx, conn)
		conn.Close()
	}
}

// readLoop drains one connection until it breaks or ctx ends.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("event stream read failed, reconnecting")
			}
			return
		}

		ev, err := bus.ParseEvent(frame)
		if err != nil {
			s.log.Debug().Err(err).Msg("skipping unparseable frame")
			continue
		}
		if err := s.bus.Publish(ctx, ev); err != nil {
			return
		}
	}
}
