// Package bot implements the relay core: the access gate ahead of every
// handler, the command dispatcher, and the agent-backed free-text path.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uflbot/uflbot/internal/access"
	"github.com/uflbot/uflbot/internal/agent"
	"github.com/uflbot/uflbot/internal/archive"
	"github.com/uflbot/uflbot/internal/bus"
	"github.com/uflbot/uflbot/internal/store"
)

// User-visible notices.
const (
	noticeRestricted  = "Access restricted."
	noticeAgentDown   = "Failed to reach the assistant. Please try again."
	noticeStorageDown = "Something went wrong. Please try again later."
	noticeNoAccess    = "No access."
	noticeHistoryGone = "Conversation history cleared."
	noticeNoHistory   = "History is empty."
)

// Display truncation bounds.
const (
	historyDisplayLimit  = 10
	historyTruncateChars = 200
	searchDisplayLimit   = 50
	searchTruncateChars  = 300
)

// Bot consumes inbound messages from the bus and produces replies.
type Bot struct {
	bus         *bus.MessageBus
	store       store.Store
	agent       agent.Completer
	gate        *access.Gate
	feed        *archive.Feed
	historySize int

	// workers holds one serial queue per chat. Only the Run goroutine
	// touches it.
	workers map[int64]chan *bus.InboundMessage
}

// New creates a relay bot. feed may be nil.
func New(messageBus *bus.MessageBus, st store.Store, completer agent.Completer, gate *access.Gate, feed *archive.Feed, historySize int) *Bot {
	return &Bot{
		bus:         messageBus,
		store:       st,
		agent:       completer,
		gate:        gate,
		feed:        feed,
		historySize: historySize,
		workers:     make(map[int64]chan *bus.InboundMessage),
	}
}

// Run consumes inbound messages until the context is cancelled. Messages for
// the same chat are handled in arrival order; distinct chats run
// concurrently.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("Relay started", "history_size", b.historySize)
	for {
		msg, err := b.bus.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to consume message", "error", err)
			continue
		}
		b.dispatch(ctx, msg)
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *bus.InboundMessage) {
	queue, ok := b.workers[msg.ChatID]
	if !ok {
		queue = make(chan *bus.InboundMessage, 16)
		b.workers[msg.ChatID] = queue
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-queue:
					b.handle(ctx, m)
				}
			}
		}()
	}
	select {
	case queue <- msg:
	case <-ctx.Done():
	}
}

// handle processes one inbound message. Failures are isolated here: they are
// logged with the trace id and never propagate.
func (b *Bot) handle(ctx context.Context, msg *bus.InboundMessage) {
	outcome := b.gate.Classify(msg.SenderID, msg.ChatType)
	slog.Info("Inbound message",
		"trace_id", msg.TraceID,
		"sender_id", msg.SenderID,
		"chat_id", msg.ChatID,
		"chat_type", msg.ChatType,
		"outcome", outcome.String(),
	)

	switch outcome {
	case access.ArchiveOnly:
		b.archiveGroupMessage(ctx, msg)
		return
	case access.Refuse:
		b.reply(msg, noticeRestricted)
		return
	}

	reply := b.respond(ctx, msg)
	if reply != "" {
		b.reply(msg, reply)
	}
}

// archiveGroupMessage captures a disallowed group participant's message
// verbatim. The store write is unconditional; the feed publish is best
// effort and never affects archival.
func (b *Bot) archiveGroupMessage(ctx context.Context, msg *bus.InboundMessage) {
	archived := &store.GroupMessage{
		ChatID:            msg.ChatID,
		ChatTitle:         msg.ChatTitle,
		AuthorID:          msg.SenderID,
		AuthorHandle:      msg.Handle,
		AuthorDisplayName: msg.DisplayName,
		Content:           msg.Content,
	}
	if err := b.store.SaveGroupMessage(ctx, archived); err != nil {
		slog.Error("Group archive failed", "trace_id", msg.TraceID, "author_id", msg.SenderID, "error", err)
		return
	}
	if err := b.feed.Publish(ctx, archived); err != nil {
		slog.Warn("Archive feed publish failed", "trace_id", msg.TraceID, "error", err)
	}
}

// respond routes one admitted message to its command handler, or to the
// free-text path.
func (b *Bot) respond(ctx context.Context, msg *bus.InboundMessage) string {
	if err := b.store.UpsertUser(ctx, msg.SenderID, msg.Handle, msg.DisplayName); err != nil {
		slog.Error("User upsert failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
		return noticeStorageDown
	}

	fields := strings.Fields(msg.Content)
	command := ""
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = fields[0]
	}

	switch command {
	case "/start":
		return b.cmdStart(msg)
	case "/history":
		return b.cmdHistory(ctx, msg)
	case "/clear":
		return b.cmdClear(ctx, msg)
	case "/stats":
		return b.cmdStats(ctx, msg)
	case "/search":
		return b.cmdSearch(ctx, msg, fields[1:])
	default:
		return b.freeText(ctx, msg)
	}
}

func (b *Bot) cmdStart(msg *bus.InboundMessage) string {
	name := msg.DisplayName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi, %s! I am the UFL PM assistant.\n\n"+
		"Ask me anything about the project and I will answer from the UFL knowledge base.\n\n"+
		"Commands:\n"+
		"/history - conversation history\n"+
		"/clear - clear history\n"+
		"/search <handle> [keyword] - search archived group messages\n"+
		"/stats - usage statistics (admins only)", name)
}

func (b *Bot) cmdHistory(ctx context.Context, msg *bus.InboundMessage) string {
	rows, err := b.store.RecentDirectMessages(ctx, msg.SenderID, historyDisplayLimit)
	if err != nil {
		slog.Error("History read failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
		return noticeStorageDown
	}
	if len(rows) == 0 {
		return noticeNoHistory
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		label := "Bot"
		if r.Role == store.RoleUser {
			label = "You"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			r.CreatedAt.Format("02.01 15:04"), label, truncate(r.Content, historyTruncateChars)))
	}
	return strings.Join(lines, "\n\n")
}

func (b *Bot) cmdClear(ctx context.Context, msg *bus.InboundMessage) string {
	if err := b.store.ClearDirectMessages(ctx, msg.SenderID); err != nil {
		slog.Error("History clear failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
		return noticeStorageDown
	}
	return noticeHistoryGone
}

func (b *Bot) cmdStats(ctx context.Context, msg *bus.InboundMessage) string {
	if !b.gate.IsAdmin(msg.SenderID) {
		return noticeNoAccess
	}
	stats, err := b.store.AggregateStats(ctx)
	if err != nil {
		slog.Error("Stats read failed", "trace_id", msg.TraceID, "error", err)
		return noticeStorageDown
	}
	return fmt.Sprintf("Stats:\nUsers: %d\nMessages: %d\nTokens used: %d\nActive in last 24h: %d",
		stats.Users, stats.Messages, stats.TokensUsed, stats.ActiveToday)
}

func (b *Bot) cmdSearch(ctx context.Context, msg *bus.InboundMessage, args []string) string {
	if len(args) == 0 {
		return "Usage: /search <handle> [keyword]"
	}
	handle := strings.TrimPrefix(args[0], "@")
	keyword := strings.Join(args[1:], " ")

	rows, err := b.store.SearchGroupMessages(ctx, handle, keyword, searchDisplayLimit)
	if err != nil {
		slog.Error("Group search failed", "trace_id", msg.TraceID, "handle", handle, "error", err)
		return noticeStorageDown
	}
	if len(rows) == 0 {
		return fmt.Sprintf("No messages found for @%s.", handle)
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		title := r.ChatTitle
		if title == "" {
			title = "(untitled)"
		}
		lines = append(lines, fmt.Sprintf("[%s] [%s] @%s: %s",
			r.CreatedAt.Format("02.01 15:04"), title, handle, truncate(r.Content, searchTruncateChars)))
	}
	return strings.Join(lines, "\n\n")
}

// freeText runs the context-assembly path: persist the incoming turn, build
// the bounded context (mention excerpts included), call the agent once, and
// persist the reply with its token usage.
func (b *Bot) freeText(ctx context.Context, msg *bus.InboundMessage) string {
	// The incoming message is saved before the history read so the read
	// includes it in this turn's context.
	if err := b.store.SaveDirectMessage(ctx, msg.SenderID, store.RoleUser, msg.Content, nil); err != nil {
		slog.Error("Message save failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
		return noticeStorageDown
	}

	messages, err := b.BuildContext(ctx, msg.SenderID, msg.Content)
	if err != nil {
		slog.Error("Context assembly failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
		return noticeStorageDown
	}

	reply, err := b.agent.Complete(ctx, messages)
	if err != nil {
		if errors.Is(err, agent.ErrUnavailable) {
			slog.Error("Agent unavailable", "trace_id", msg.TraceID, "error", err)
		} else {
			slog.Error("Agent call failed", "trace_id", msg.TraceID, "error", err)
		}
		return noticeAgentDown
	}

	tokens := reply.TokensUsed
	if err := b.store.SaveDirectMessage(ctx, msg.SenderID, store.RoleAssistant, reply.Text, &tokens); err != nil {
		// The reply is still delivered; only its persistence failed.
		slog.Error("Reply save failed", "trace_id", msg.TraceID, "sender_id", msg.SenderID, "error", err)
	}
	return reply.Text
}

func (b *Bot) reply(msg *bus.InboundMessage, content string) {
	b.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		TraceID: msg.TraceID,
		ChatID:  msg.ChatID,
		Content: content,
	})
}

// truncate cuts s to at most limit runes, appending an ellipsis when
// anything was cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
