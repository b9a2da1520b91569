package authsignal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Listener is the loopback endpoint the authorization context reports back to.
// It accepts the posted message and the query-string fallback.
type Listener struct {
	bus    *Bus
	logger *log.Logger
	server *http.Server
	addr   string
}

// NewListener creates a listener publishing onto bus
func NewListener(bus *Bus, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default().WithPrefix("signal")
	}
	return &Listener{bus: bus, logger: logger}
}

// Handler exposes the HTTP routes
func (l *Listener) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", l.handleMessage)
	mux.HandleFunc("/", l.handleLanding)
	return mux
}

// Start listens on addr and serves in the background
func (l *Listener) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.addr = ln.Addr().String()
	l.server = &http.Server{Handler: l.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback listener stopped", "error", err)
		}
	}()
	l.logger.Info("waiting for authorization callback", "addr", l.addr)
	return nil
}

// Addr is the bound address after Start
func (l *Listener) Addr() string {
	return l.addr
}

// Shutdown stops the server
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	if msg.Type != TypeYouTubeAuthSuccess {
		l.logger.Debug("ignoring message", "type", msg.Type)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	n := l.bus.Publish(msg)
	l.logger.Debug("authorization message delivered", "listeners", n)
	w.WriteHeader(http.StatusNoContent)
}

func (l *Listener) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if q.Get(QueryFlag) == "true" {
		n := l.bus.Publish(Message{Type: TypeYouTubeAuthSuccess})
		l.logger.Debug("authorization flag delivered", "listeners", n)
		// scrub the flag from the visible address
		q.Del(QueryFlag)
		target := "/"
		if enc := q.Encode(); enc != "" {
			target += "?" + enc
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, landingPage)
}

const landingPage = `<!doctype html>
<html><head><title>shorts-studio</title></head>
<body><p>You can close this window and return to the terminal.</p></body></html>
`
