package gateway

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	signatureHeader = "X-Signature-Ed25519"
	timestampHeader = "X-Signature-Timestamp"
	senderHeader    = "X-Event-Sender"

	// maxEventBytes bounds the request body read; platform events are small.
	maxEventBytes = 1 << 20
)

// RouterConfig holds configuration for the gateway router
type RouterConfig struct {
	Logger    *slog.Logger
	Sink      EventSink
	PublicKey ed25519.PublicKey
	Limiter   *SenderLimiter
}

// NewRouter creates the gateway router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With(slog.String("component", "gateway"))
	h := &eventHandler{
		logger: logger,
		sink:   cfg.Sink,
		key:    cfg.PublicKey,
	}

	r := mux.NewRouter()
	r.Use(recovery(logger))
	r.Use(logging(logger))

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	events := r.PathPrefix("/v1").Subrouter()
	if cfg.Limiter != nil {
		events.Use(cfg.Limiter.Middleware)
	}
	events.HandleFunc("/events", h.handleEvent).Methods(http.MethodPost)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type eventHandler struct {
	logger *slog.Logger
	sink   EventSink
	key    ed25519.PublicKey
}

func (h *eventHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}

	if !h.verify(r, body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if !h.dispatch(ev) {
		http.Error(w, "unsupported event", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": ev.ID})
}

// verify checks the ed25519 signature over timestamp+body.
func (h *eventHandler) verify(r *http.Request, body []byte) bool {
	sig, err := hex.DecodeString(r.Header.Get(signatureHeader))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	ts := r.Header.Get(timestampHeader)
	if ts == "" {
		return false
	}
	msg := append([]byte(ts), body...)
	return ed25519.Verify(h.key, msg, sig)
}

// dispatch hands the event to the sink on its own goroutine. The HTTP
// request finishes immediately; the sink never blocks a delivery.
func (h *eventHandler) dispatch(ev Event) bool {
	logger := h.logger.With(slog.String("event_id", ev.ID), slog.String("event_type", string(ev.Type)))

	switch ev.Type {
	case EventMessageCreate:
		if ev.Msg == nil {
			return false
		}
		msg := *ev.Msg
		go func() {
			logger.Debug("dispatching event")
			h.sink.HandleMessage(context.Background(), msg)
		}()
	case EventMemberJoin:
		if ev.Member == nil {
			return false
		}
		member := *ev.Member
		go func() {
			logger.Debug("dispatching event")
			h.sink.HandleMemberJoin(context.Background(), member)
		}()
	case EventMemberRemove:
		if ev.Member == nil {
			return false
		}
		member := *ev.Member
		go func() {
			logger.Debug("dispatching event")
			h.sink.HandleMemberRemove(context.Background(), member)
		}()
	default:
		return false
	}
	return true
}
