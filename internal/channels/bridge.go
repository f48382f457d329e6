package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uflbot/uflbot/internal/bus"
	"github.com/uflbot/uflbot/internal/config"
)

// BridgeChannel connects the relay to an external transport collaborator
// over HTTP: inbound messages arrive on a webhook endpoint, replies are
// POSTed back to the transport's outbound URL.
type BridgeChannel struct {
	BaseChannel
	config config.BridgeConfig
	server *http.Server
	client *http.Client
}

// NewBridgeChannel creates a bridge channel.
func NewBridgeChannel(cfg config.BridgeConfig, messageBus *bus.MessageBus) *BridgeChannel {
	return &BridgeChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *BridgeChannel) Name() string { return "bridge" }

// inboundPayload is the wire format the transport collaborator POSTs.
type inboundPayload struct {
	ChatID      int64  `json:"chat_id"`
	ChatType    string `json:"chat_type"`
	ChatTitle   string `json:"chat_title,omitempty"`
	SenderID    int64  `json:"sender_id"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text"`
}

// Start registers the outbound subscription and serves the inbound endpoint
// until the context is cancelled.
func (c *BridgeChannel) Start(ctx context.Context) error {
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			slog.Error("Bridge delivery failed", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "error", err)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbound", c.handleInbound)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c.server = &http.Server{
		Addr:              c.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Bridge listening", "addr", c.config.ListenAddr)
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("bridge server: %w", err)
	}
}

// Stop shuts down the inbound server.
func (c *BridgeChannel) Stop() error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

func (c *BridgeChannel) handleInbound(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if payload.SenderID == 0 || payload.ChatID == 0 {
		http.Error(w, "sender_id and chat_id are required", http.StatusBadRequest)
		return
	}

	chatType := bus.ChatDirect
	if payload.ChatType == string(bus.ChatGroup) {
		chatType = bus.ChatGroup
	}

	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:     c.Name(),
		TraceID:     uuid.NewString(),
		ChatID:      payload.ChatID,
		ChatType:    chatType,
		ChatTitle:   payload.ChatTitle,
		SenderID:    payload.SenderID,
		Handle:      payload.Handle,
		DisplayName: payload.DisplayName,
		Content:     payload.Text,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (c *BridgeChannel) authorized(r *http.Request) bool {
	token := strings.TrimSpace(c.config.Token)
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}

// Send delivers one reply to the transport's outbound webhook. With no
// outbound URL configured the reply is only logged.
func (c *BridgeChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if strings.TrimSpace(c.config.OutboundURL) == "" {
		slog.Info("Reply (no outbound URL)", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "content", msg.Content)
		return nil
	}
	body, _ := json.Marshal(map[string]any{
		"chat_id":  msg.ChatID,
		"text":     msg.Content,
		"trace_id": msg.TraceID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.OutboundURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := strings.TrimSpace(c.config.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("outbound bridge status: %d", resp.StatusCode)
	}
	return nil
}
