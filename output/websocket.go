package output

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/beatglow/internal/led"
)

const wsWriteTimeout = 5 * time.Second

// ColorMessage is the message broadcast to websocket clients.
type ColorMessage struct {
	Color string `json:"color"`
	R     uint8  `json:"r"`
	G     uint8  `json:"g"`
	B     uint8  `json:"b"`
}

func newColorMessage(c led.RGBColor) ColorMessage {
	return ColorMessage{Color: c.Hex(), R: c.R(), G: c.G(), B: c.B()}
}

// Websocket is a sink that serves the current color to websocket clients at
// /ws. Clients receive the current color when they connect and every change
// after that.
type Websocket struct {
	addr     string
	logger   *slog.Logger
	box      *mailbox
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	current led.RGBColor
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebsocket creates a new websocket sink listening on addr.
func NewWebsocket(addr string, logger *slog.Logger) *Websocket {
	ws := &Websocket{
		addr:    addr,
		logger:  logger.With("output", "websocket", "listen", addr),
		box:     newMailbox(),
		clients: make(map[*wsClient]struct{}),
	}
	ws.upgrader = websocket.Upgrader{CheckOrigin: ws.checkOrigin}
	return ws
}

// Name implements Sink.
func (ws *Websocket) Name() string { return "websocket:" + ws.addr }

// SetColor implements Sink. The color is broadcast to every connected
// client.
func (ws *Websocket) SetColor(c led.RGBColor) { ws.box.Put(c) }

// Handler returns the HTTP handler of the sink.
func (ws *Websocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handleWebsocket)
	return mux
}

// Run serves websocket clients until ctx is done.
func (ws *Websocket) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", ws.addr)
	}

	srv := &http.Server{
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "websocket server failed")
		}
		return nil
	})
	errg.Go(func() error {
		err := ws.broadcastLoop(ctx)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			ws.logger.Warn("failed to shut down websocket server", "error", err)
		}
		ws.closeClients()

		return err
	})

	ws.logger.Info("serving websocket clients")
	return errg.Wait()
}

func (ws *Websocket) broadcastLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			ws.flush()
			return ctx.Err()
		case <-ws.box.Notify():
			ws.flush()
		}
	}
}

func (ws *Websocket) flush() {
	c, ok := ws.box.Take()
	if !ok {
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if c == ws.current {
		return
	}
	ws.current = c

	msg, err := json.Marshal(newColorMessage(c))
	if err != nil {
		ws.logger.Error("failed to encode color message", "error", err)
		return
	}

	for client := range ws.clients {
		client.push(msg)
	}
}

// push queues msg, replacing a message the writer has not picked up yet. The
// caller must hold the sink's lock.
func (c *wsClient) push(msg []byte) {
	select {
	case <-c.send:
	default:
	}
	c.send <- msg
}

func (ws *Websocket) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 1),
	}

	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		conn.Close()
		return
	}

	msg, err := json.Marshal(newColorMessage(ws.current))
	if err != nil {
		ws.mu.Unlock()
		conn.Close()
		return
	}

	ws.clients[client] = struct{}{}
	client.push(msg)
	ws.mu.Unlock()

	ws.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go ws.runWriter(client)
	ws.runReader(client)

	ws.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

// runWriter is the only goroutine writing to the connection.
func (ws *Websocket) runWriter(c *wsClient) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

// runReader discards incoming messages until the connection fails.
func (ws *Websocket) runReader(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	ws.removeClient(c)
}

func (ws *Websocket) removeClient(c *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if _, ok := ws.clients[c]; ok {
		delete(ws.clients, c)
		close(c.send)
	}
}

func (ws *Websocket) closeClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.closed = true
	for c := range ws.clients {
		delete(ws.clients, c)
		close(c.send)
	}
}

// checkOrigin allows same-origin requests and requests from local or
// private addresses.
func (ws *Websocket) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header.
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		ws.logger.Warn("rejected websocket connection: invalid origin", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	ws.logger.Warn("rejected websocket connection", "origin", origin)
	return false
}
