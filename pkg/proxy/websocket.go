package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// isWebSocketUpgrade reports whether r asks to switch to the WebSocket
// protocol.
func isWebSocketUpgrade(r *http.Request) bool {
	return headerHasToken(r.Header, "Connection", "upgrade") &&
		strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// serveWebSocket dials the backend, replays the upgrade request and pipes
// raw bytes both ways until either side closes. Upgrades are never recorded.
func (e *Engine) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	backend, err := e.dialer.DialContext(r.Context(), "tcp", e.backendAddr)
	if err != nil {
		e.metrics.RecordBackendError()
		e.logger.Warn("websocket backend dial failed", "backend", e.backendAddr, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	if e.config.ChangeOrigin {
		r.Host = e.backendAddr
	}
	// An empty value stops Request.Write from adding its default User-Agent.
	if _, ok := r.Header["User-Agent"]; !ok {
		r.Header["User-Agent"] = []string{""}
	}
	if err := r.Write(backend); err != nil {
		backend.Close()
		e.metrics.RecordBackendError()
		e.logger.Warn("websocket upgrade write failed", "backend", e.backendAddr, "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	client, brw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		backend.Close()
		e.logger.Error("websocket hijack failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Bytes the server already read past the request headers belong to the
	// backend.
	if n := brw.Reader.Buffered(); n > 0 {
		buffered, _ := brw.Reader.Peek(n)
		if _, err := backend.Write(buffered); err != nil {
			client.Close()
			backend.Close()
			return
		}
	}

	e.metrics.WebSocketOpened()
	defer e.metrics.WebSocketClosed()

	id := e.pipes.add(client, backend)
	defer e.pipes.remove(id)

	e.logger.Debug("websocket pipe opened", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	pipe(client, backend)
	e.logger.Debug("websocket pipe closed", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
}

// pipe copies between a and b until one direction ends, then closes both.
func pipe(a, b net.Conn) {
	errc := make(chan error, 2)
	cp := func(dst, src net.Conn) {
		_, err := io.Copy(dst, src)
		errc <- err
	}
	go cp(a, b)
	go cp(b, a)

	<-errc
	a.Close()
	b.Close()
	<-errc
}

// pipeSet tracks live WebSocket pipes so they can be closed on teardown.
type pipeSet struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[uint64][2]net.Conn
}

func newPipeSet() *pipeSet {
	return &pipeSet{conns: make(map[uint64][2]net.Conn)}
}

func (p *pipeSet) add(client, backend net.Conn) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.conns[p.nextID] = [2]net.Conn{client, backend}
	return p.nextID
}

func (p *pipeSet) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, id)
}

func (p *pipeSet) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// wait blocks until no pipes remain or ctx is done.
func (p *pipeSet) wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for p.count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// closeAll force-closes every pipe and returns how many were open.
func (p *pipeSet) closeAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.conns)
	for _, c := range p.conns {
		c[0].Close()
		c[1].Close()
	}
	return n
}
