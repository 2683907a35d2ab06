// Package transport carries protocol frames over websockets: a Hub on the UI
// side accepting renderer connections, and a reconnecting Client on the
// renderer side.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/metrics"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// ErrHubClosed is returned by ServeHTTP and Dispatch after Close.
var ErrHubClosed = errors.New("hub closed")

// Hub defaults.
const (
	DefaultQueueHint     = 64
	DefaultInboundBuffer = 256
	DefaultWriteTimeout  = 10 * time.Second
	writeBatch           = 32
)

// HubConfig holds Hub options.
type HubConfig struct {
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	QueueHint     int64
	InboundBuffer int
	WriteTimeout  time.Duration
}

// Hub accepts renderer websocket connections. Inbound frames are decoded and
// delivered in arrival order through Dispatch; outbound payloads are routed
// to the connection a renderer id was last seen on, or broadcast when they
// are not renderer scoped.
type Hub struct {
	upgrader websocket.Upgrader
	peers    cmap.ConcurrentMap[string, *peer]
	// routes maps a renderer id to the peer id it talks through.
	routes  cmap.ConcurrentMap[string, string]
	inbound chan protocol.Payload
	cfg     HubConfig
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type peer struct {
	id   string
	conn *websocket.Conn
	out  *queue.Queue
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.QueueHint <= 0 {
		cfg.QueueHint = DefaultQueueHint
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = DefaultInboundBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Renderers are served from other origins
			},
		},
		peers:   cmap.New[*peer](),
		routes:  cmap.New[string](),
		inbound: make(chan protocol.Payload, cfg.InboundBuffer),
		cfg:     cfg,
		log:     log.Named("hub"),
		done:    make(chan struct{}),
	}
}

// ServeHTTP upgrades a renderer connection and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		conn: conn,
		out:  queue.New(h.cfg.QueueHint),
	}
	h.peers.Set(p.id, p)
	h.log.Debug("peer connected", zap.String("peer", p.id), zap.String("remote", r.RemoteAddr))

	// Close may have run between the check above and the Set.
	select {
	case <-h.done:
		conn.Close()
	default:
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(p)
	}()

	h.readLoop(p)

	h.peers.Remove(p.id)
	for _, rendererID := range h.routes.Keys() {
		h.routes.RemoveCb(rendererID, func(_ string, peerID string, exists bool) bool {
			return exists && peerID == p.id
		})
	}
	p.out.Dispose()
	<-writerDone
	conn.Close()
	h.log.Debug("peer disconnected", zap.String("peer", p.id))
}

func (h *Hub) readLoop(p *peer) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			h.log.Warn("dropping malformed frame", zap.String("peer", p.id), zap.Error(err))
			h.cfg.Metrics.Dropped(metrics.DropMalformed)
			continue
		}
		// Only a renderer's own messages claim its route.
		if scoped, ok := msg.(protocol.Scoped); ok && protocol.FromRenderer(msg.MessageType()) {
			h.routes.Set(string(scoped.Renderer()), p.id)
		}

		select {
		case h.inbound <- msg:
		case <-h.done:
			return
		}
	}
}

func (h *Hub) writeLoop(p *peer) {
	for {
		items, err := p.out.Get(writeBatch)
		if err != nil {
			// Disposed.
			return
		}
		for _, item := range items {
			p.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, item.([]byte)); err != nil {
				h.log.Debug("write failed", zap.String("peer", p.id), zap.Error(err))
				p.conn.Close()
				return
			}
		}
	}
}

// Post queues a payload for delivery and returns without waiting. Payloads
// for renderers without a live connection are dropped.
func (h *Hub) Post(msg protocol.Payload) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	scoped, ok := msg.(protocol.Scoped)
	if !ok {
		for _, p := range h.peers.Items() {
			h.enqueue(p, data)
		}
		return nil
	}

	rendererID := string(scoped.Renderer())
	peerID, ok := h.routes.Get(rendererID)
	if !ok {
		h.log.Debug("no connection for renderer", zap.String("renderer", rendererID))
		h.cfg.Metrics.Dropped(metrics.DropDisconnected)
		return nil
	}
	p, ok := h.peers.Get(peerID)
	if !ok {
		h.cfg.Metrics.Dropped(metrics.DropDisconnected)
		return nil
	}
	h.enqueue(p, data)
	return nil
}

func (h *Hub) enqueue(p *peer, data []byte) {
	if err := p.out.Put(data); err != nil {
		// The peer is going away.
		h.cfg.Metrics.Dropped(metrics.DropDisconnected)
	}
}

// Dispatch hands inbound payloads to handle, one at a time and in arrival
// order, until ctx is done or the hub is closed.
func (h *Hub) Dispatch(ctx context.Context, handle func(protocol.Payload)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return ErrHubClosed
		case msg := <-h.inbound:
			handle(msg)
		}
	}
}

// Peers returns the number of open connections.
func (h *Hub) Peers() int {
	return h.peers.Count()
}

// Connected reports whether a renderer id is routed to an open connection.
func (h *Hub) Connected(rendererID protocol.RendererID) bool {
	return h.routes.Has(string(rendererID))
}

// Close disconnects every peer and waits for their handlers to return.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()

	for _, p := range h.peers.Items() {
		p.conn.Close()
	}
	h.wg.Wait()
	return nil
}
