package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/protocol"
)

// ClientConfig holds Client options.
type ClientConfig struct {
	// URL is the websocket endpoint of the UI, e.g. ws://localhost:5000/renderer.
	URL          string
	Logger       *zap.Logger
	QueueHint    int64
	WriteTimeout time.Duration
	// NewBackOff returns the reconnect policy. Defaults to an exponential
	// backoff that never gives up.
	NewBackOff func() backoff.BackOff
}

// Client is the renderer end of the websocket. It reconnects with backoff;
// payloads posted while disconnected are dropped.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	log    *zap.Logger

	mu  sync.Mutex
	out *queue.Queue
}

// NewClient creates a Client. Nothing is dialed until Run.
func NewClient(cfg ClientConfig) *Client {
	if cfg.QueueHint <= 0 {
		cfg.QueueHint = DefaultQueueHint
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    log.Named("client"),
	}
}

// Post queues a payload on the current connection.
func (c *Client) Post(msg protocol.Payload) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	out := c.out
	c.mu.Unlock()

	if out == nil {
		c.log.Debug("not connected, dropping message", zap.String("type", string(msg.MessageType())))
		return nil
	}
	if err := out.Put(data); err != nil {
		c.log.Debug("connection closing, dropping message", zap.String("type", string(msg.MessageType())))
	}
	return nil
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

// Run dials the UI and serves connections until ctx is done. onConnect is
// called after every successful dial, with first set on the initial one.
// handle receives every inbound frame in order.
func (c *Client) Run(ctx context.Context, handle func([]byte), onConnect func(first bool)) error {
	first := true
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c.serve(ctx, conn, handle, func() {
			if onConnect != nil {
				onConnect(first)
			}
		})
		first = false

		if ctx.Err() != nil {
			return nil
		}
		c.log.Info("connection lost, reconnecting", zap.String("url", c.cfg.URL))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		var err error
		conn, _, err = c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.log.Debug("dial failed", zap.String("url", c.cfg.URL), zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(c.cfg.NewBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn, handle func([]byte), onConnect func()) {
	out := queue.New(c.cfg.QueueHint)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			items, err := out.Get(writeBatch)
			if err != nil {
				return
			}
			for _, item := range items {
				conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, item.([]byte)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	c.log.Info("connected", zap.String("url", c.cfg.URL))
	onConnect()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		handle(data)
	}

	c.mu.Lock()
	c.out = nil
	c.mu.Unlock()
	out.Dispose()
	<-writerDone
	conn.Close()
}
