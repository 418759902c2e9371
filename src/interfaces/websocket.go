package interfaces

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	"github.com/yggdrasil-network/rnsmesh/src/packet"
)

const wsSubprotocol = "rns-ws"

const wsWriteTimeout = 10 * time.Second

// WebSocketInterface carries one frame per binary message. As a server it
// accepts any number of clients and sends to all of them; as a client it
// keeps one connection up.
type WebSocketInterface struct {
	base
	listen     string
	url        string
	ctx        context.Context
	cancel     context.CancelFunc
	listener   net.Listener
	httpServer *http.Server
	connLock   sync.Mutex
	conns      map[*websocket.Conn]*sendQueue
}

func NewWebSocket(cfg WebSocketConfig, logger core.Logger) (*WebSocketInterface, error) {
	if cfg.Listen == "" && cfg.URL == "" {
		return nil, ErrMissingAddress
	}
	w := &WebSocketInterface{
		listen: cfg.Listen,
		url:    cfg.URL,
		conns:  make(map[*websocket.Conn]*sendQueue),
	}
	fallback := "ws " + cfg.URL
	if cfg.Listen != "" {
		fallback = "ws server " + cfg.Listen
	}
	if err := w.init(cfg.Config, fallback, logger); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WebSocketInterface) Start() error {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	if w.listen == "" {
		go w.dialLoop()
		return nil
	}
	lc := &net.ListenConfig{KeepAlive: -1}
	listener, err := lc.Listen(w.ctx, "tcp", w.listen)
	if err != nil {
		return err
	}
	w.listener = listener
	w.httpServer = &http.Server{
		Handler:           w,
		BaseContext:       func(_ net.Listener) context.Context { return w.ctx },
		ReadHeaderTimeout: time.Second * 10,
	}
	w.setOnline(true)
	w.log.Infof("Interface %s listening on %s", w.name, listener.Addr())
	go w.httpServer.Serve(listener) // nolint:errcheck
	return nil
}

// Addr is the address the server listens on, once started.
func (w *WebSocketInterface) Addr() net.Addr {
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Clients is the number of open connections.
func (w *WebSocketInterface) Clients() int {
	w.connLock.Lock()
	defer w.connLock.Unlock()
	return len(w.conns)
}

func (w *WebSocketInterface) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" || r.URL.Path == "/healthz" {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("OK"))
		return
	}

	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocol},
	})
	if err != nil {
		return
	}

	if c.Subprotocol() != wsSubprotocol {
		c.Close(websocket.StatusPolicyViolation, "client must speak the "+wsSubprotocol+" subprotocol")
		return
	}
	w.log.Debugf("Interface %s accepted %s", w.name, r.RemoteAddr)
	w.serve(c)
}

// serve reads messages from c until it closes.
func (w *WebSocketInterface) serve(c *websocket.Conn) error {
	c.SetReadLimit(2 * packet.MTU)
	w.connLock.Lock()
	w.conns[c] = new(sendQueue)
	w.connLock.Unlock()
	defer func() {
		w.connLock.Lock()
		delete(w.conns, c)
		w.connLock.Unlock()
		c.CloseNow()
	}()
	for {
		typ, data, err := c.Read(w.ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		w.deliver(data)
	}
}

func (w *WebSocketInterface) dialLoop() {
	var backoff int
	backoffNow := func() bool {
		backoff = min(backoff+1, maxBackoff)
		duration := time.Second * time.Duration(math.Exp2(float64(backoff)))
		select {
		case <-time.After(duration):
			return true
		case <-w.ctx.Done():
			return false
		}
	}
	for {
		dialCtx, cancel := context.WithTimeout(w.ctx, dialTimeout)
		c, _, err := websocket.Dial(dialCtx, w.url, &websocket.DialOptions{
			Subprotocols: []string{wsSubprotocol},
		})
		cancel()
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.log.Debugf("Interface %s failed to connect: %v", w.name, err)
			if backoffNow() {
				continue
			}
			return
		}
		w.setOnline(true)
		w.log.Infof("Interface %s connected to %s", w.name, w.url)
		if err := w.serve(c); w.ctx.Err() == nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				w.log.Debugf("Interface %s error: %v", w.name, err)
			} else {
				backoff = 0
			}
		}
		w.setOnline(false)
		if w.ctx.Err() != nil || !backoffNow() {
			return
		}
	}
}

func (w *WebSocketInterface) snapshot() map[*websocket.Conn]*sendQueue {
	w.connLock.Lock()
	defer w.connLock.Unlock()
	conns := make(map[*websocket.Conn]*sendQueue, len(w.conns))
	for c, q := range w.conns {
		conns[c] = q
	}
	return conns
}

func (w *WebSocketInterface) Send(frame []byte) error {
	conns := w.snapshot()
	if len(conns) == 0 {
		if w.listen == "" {
			return ErrNotConnected
		}
		return nil
	}
	frame = append([]byte(nil), frame...)
	for c, q := range conns {
		c := c
		err := q.push(frame, func(msg []byte) error {
			ctx, cancel := context.WithTimeout(w.ctx, wsWriteTimeout)
			defer cancel()
			if err := c.Write(ctx, websocket.MessageBinary, msg); err != nil {
				c.CloseNow()
				return err
			}
			return nil
		})
		if err != nil {
			w.log.Debugf("Interface %s write failed: %v", w.name, err)
		}
	}
	w.sent(len(frame))
	return nil
}

func (w *WebSocketInterface) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	for c := range w.snapshot() {
		c.CloseNow()
	}
	w.setOnline(false)
	if w.httpServer != nil {
		return w.httpServer.Close()
	}
	return nil
}
