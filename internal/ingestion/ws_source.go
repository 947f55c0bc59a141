package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blok-hamster/kol-play-core/internal/domain"
	"github.com/blok-hamster/kol-play-core/internal/observability"
)

// WSConfig configures WebSocket source behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// wsEnvelope is the wire format of one feed message.
type wsEnvelope struct {
	Type string               `json:"type"`
	Data domain.ConnectionMap `json:"data"`
}

// Message types accepted from the feed.
const (
	msgTypeMindmapUpdate = "mindmap_update"
)

// WSSnapshotSource implements SnapshotSource over gorilla/websocket.
// It reconnects with exponential backoff and keeps the connection alive
// with periodic pings.
type WSSnapshotSource struct {
	endpoint string
	config   WSConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out chan domain.ConnectionMap

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool

	logger *log.Logger
}

// NewWSSnapshotSource creates a snapshot source and connects to the endpoint.
func NewWSSnapshotSource(ctx context.Context, endpoint string, config *WSConfig) (*WSSnapshotSource, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSSnapshotSource{
		endpoint: endpoint,
		config:   cfg,
		out:      make(chan domain.ConnectionMap, 16),
		done:     make(chan struct{}),
		logger:   log.New(os.Stdout, "[ws-source] ", log.LstdFlags|log.Lshortfile),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

var _ SnapshotSource = (*WSSnapshotSource)(nil)

// Snapshots returns the channel of incoming snapshots.
func (s *WSSnapshotSource) Snapshots() <-chan domain.ConnectionMap {
	return s.out
}

// connect establishes WebSocket connection.
func (s *WSSnapshotSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// Close closes the WebSocket connection and the snapshot channel.
func (s *WSSnapshotSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
	return nil
}

// readLoop reads messages and delivers decoded snapshots.
func (s *WSSnapshotSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect after a delay.
func (s *WSSnapshotSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		s.logger.Printf("reconnect failed: %v", err)
		return
	}

	observability.RecordStreamReconnect()
	s.logger.Printf("reconnected to %s", s.endpoint)
}

// handleMessage decodes one feed message and forwards the snapshot.
func (s *WSSnapshotSource) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Printf("malformed message: %v", err)
		return
	}

	if env.Type != msgTypeMindmapUpdate || env.Data == nil {
		return
	}

	observability.RecordStreamMessage()

	// Block until we can send - a snapshot replaces all prior state,
	// so the consumer must see it
	select {
	case s.out <- env.Data:
	case <-s.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *WSSnapshotSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}
