package tcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/corey/linecheck/internal/logging"
	"github.com/corey/linecheck/internal/ports"
	"github.com/google/uuid"
)

// DefaultLinger is how long teardown keeps draining unread input after the
// reply, so the peer reads the reply before the socket is released.
const DefaultLinger = 100 * time.Millisecond

// maxDrainBytes caps how much unread input teardown will discard.
const maxDrainBytes = 1 << 20

// errPayloadTooLarge stops the read phase once the limit is crossed.
var errPayloadTooLarge = errors.New("payload too large")

// HandlerConfig bounds a single connection.
type HandlerConfig struct {
	// MaxPayload is the largest accepted request in bytes, terminator
	// included. Zero uses DefaultMaxPayload.
	MaxPayload int

	// ReadTimeout bounds each read. Zero means no timeout: a silent peer
	// blocks its handler until it closes or the server force-closes it.
	// When a read times out the bytes received so far are the request.
	ReadTimeout time.Duration

	// Linger bounds the post-reply drain. Zero uses DefaultLinger; a
	// negative value disables draining.
	Linger time.Duration
}

// Observer receives the outcome of every handled connection.
type Observer func(resp Response, elapsed time.Duration)

// Handler turns one connection's bytes into exactly one Response.
// It never panics and never returns an error to its caller.
type Handler struct {
	strategy ports.Strategy
	cfg      HandlerConfig
	log      *slog.Logger
	observer Observer
}

// NewHandler creates a handler that answers queries with strategy.
func NewHandler(strategy ports.Strategy, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = DefaultMaxPayload
	}
	if cfg.Linger == 0 {
		cfg.Linger = DefaultLinger
	}
	return &Handler{
		strategy: strategy,
		cfg:      cfg,
		log:      logging.OrDiscard(logger),
	}
}

// SetObserver registers fn to be called after each connection closes.
// Must be called before the handler serves connections.
func (h *Handler) SetObserver(fn Observer) {
	h.observer = fn
}

// Serve handles conn from first read to close. The connection is always
// closed when Serve returns.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	start := time.Now()
	log := h.log.With("conn", uuid.NewString(), "peer", peerAddr(conn))
	log.Info("connection accepted")
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler failure after response", "panic", r)
			_ = conn.Close()
		}
	}()

	resp := h.process(ctx, conn, log)
	if resp == "" {
		log.Warn("no response generated, sending fallback")
		resp = RespEmptyResponse
	}
	h.respond(conn, resp, log)
	teardown(conn, h.cfg.Linger)

	elapsed := time.Since(start)
	if h.observer != nil {
		h.observer(resp, elapsed)
	}
	log.Info("connection closed", "response", resp.Label(), "elapsed", elapsed.Round(time.Microsecond).String())
}

// process runs RECEIVING, VALIDATING and SEARCHING. A panic anywhere in
// them becomes RespInternalError.
func (h *Handler) process(ctx context.Context, conn net.Conn, log *slog.Logger) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected failure", "panic", r)
			log.Debug("unexpected failure stack", "stack", string(debug.Stack()))
			resp = RespInternalError
		}
	}()

	data, err := h.receive(conn)
	switch {
	case errors.Is(err, errPayloadTooLarge):
		log.Warn("payload too large", "received", len(data), "max", h.cfg.MaxPayload)
		return RespPayloadTooLarge
	case err != nil:
		log.Error("read failed", "received", len(data), "err", err)
		return RespInternalError
	}
	log.Debug("request received", "bytes", len(data))

	query, rejected := validate(data)
	if rejected != "" {
		log.Warn("request rejected", "response", rejected.Label())
		return rejected
	}
	log.Info("query received", "query", query)

	found := h.search(ctx, query, log)
	log.Info("search result", "found", found)
	if found {
		return RespExists
	}
	return RespNotFound
}

// receive accumulates the request until the terminator arrives in the
// latest chunk or the peer closes. It returns errPayloadTooLarge as soon
// as the running total crosses MaxPayload, without reading further.
func (h *Handler) receive(conn net.Conn) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, chunkSize)
	for {
		if h.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > h.cfg.MaxPayload {
				return buf, errPayloadTooLarge
			}
			if bytes.IndexByte(chunk[:n], Terminator) >= 0 {
				return buf, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			var ne net.Error
			if h.cfg.ReadTimeout > 0 && errors.As(err, &ne) && ne.Timeout() {
				return buf, nil
			}
			return buf, err
		}
	}
}

// validate turns raw request bytes into a query, or the reply explaining
// why there is none.
func validate(data []byte) (string, Response) {
	if len(data) == 0 {
		return "", RespNoData
	}
	trimmed := bytes.Trim(data, string(Terminator))
	if !utf8.Valid(trimmed) {
		return "", RespInvalidUTF8
	}
	query := strings.TrimFunc(string(trimmed), func(r rune) bool {
		return unicode.IsSpace(r) || r == rune(Terminator)
	})
	if query == "" {
		return "", RespEmptyQuery
	}
	return query, ""
}

// search asks the strategy. A strategy that panics is treated as a miss.
func (h *Handler) search(ctx context.Context, query string, log *slog.Logger) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("search strategy failed", "strategy", string(h.strategy.Kind()), "panic", r)
			found = false
		}
	}()
	return h.strategy.Exists(ctx, query)
}

func (h *Handler) respond(conn net.Conn, resp Response, log *slog.Logger) {
	log.Debug("sending response", "response", resp.Label())
	if _, err := io.WriteString(conn, string(resp)); err != nil {
		log.Warn("send failed", "err", err)
	}
}

// teardown shuts the connection down in both directions and closes it.
// Every step ignores its own error so the close always happens.
func teardown(conn net.Conn, linger time.Duration) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	if linger > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(linger))
		_, _ = io.Copy(io.Discard, io.LimitReader(conn, maxDrainBytes))
	}
	if cr, ok := conn.(interface{ CloseRead() error }); ok {
		_ = cr.CloseRead()
	}
	_ = conn.Close()
}

func peerAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
