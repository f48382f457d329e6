package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/uflbot/uflbot/internal/agent"
	"github.com/uflbot/uflbot/internal/store"
)

// mentionPattern matches "@handle" references. Word characters only, so
// handles containing punctuation cannot be referenced this way; that
// limitation is part of the mention contract.
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// mentionExcerptLimit bounds how many archived group messages are injected
// per mentioned handle.
const mentionExcerptLimit = 100

// ExtractMentions returns the handles referenced in text, deduplicated
// case-insensitively, preserving first-occurrence order.
func ExtractMentions(text string) []string {
	seen := make(map[string]struct{})
	var handles []string
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		handle := match[1]
		key := strings.ToLower(handle)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, handle)
	}
	return handles
}

// BuildContext assembles the ordered message list for the agent call: the
// sender's recent history (which already includes the just-saved incoming
// message), preceded by at most one system entry holding archived group
// excerpts for every handle the incoming text mentions.
func (b *Bot) BuildContext(ctx context.Context, userID int64, text string) ([]agent.Message, error) {
	history, err := b.store.RecentDirectMessages(ctx, userID, b.historySize)
	if err != nil {
		return nil, err
	}

	base := make([]agent.Message, 0, len(history)+1)
	for _, m := range history {
		base = append(base, agent.Message{Role: m.Role, Content: m.Content})
	}

	excerpts, err := b.mentionExcerpts(ctx, text)
	if err != nil {
		return nil, err
	}
	if excerpts == "" {
		return base, nil
	}
	return append([]agent.Message{{Role: store.RoleSystem, Content: excerpts}}, base...), nil
}

// mentionExcerpts builds the content of the injected system entry, or ""
// when no mentioned handle has archived messages.
func (b *Bot) mentionExcerpts(ctx context.Context, text string) (string, error) {
	var blocks []string
	for _, handle := range ExtractMentions(text) {
		msgs, err := b.store.SearchGroupMessages(ctx, handle, "", mentionExcerptLimit)
		if err != nil {
			return "", err
		}
		if len(msgs) == 0 {
			continue
		}
		// Search returns newest first; excerpts read chronologically.
		lines := make([]string, 0, len(msgs)+1)
		lines = append(lines, fmt.Sprintf("Messages from @%s:", handle))
		for i := len(msgs) - 1; i >= 0; i-- {
			lines = append(lines, formatExcerptLine(&msgs[i]))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func formatExcerptLine(m *store.GroupMessage) string {
	title := m.ChatTitle
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("[%s] [%s] %s", m.CreatedAt.Format("2006-01-02 15:04"), title, m.Content)
}
