package bot

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/uflbot/uflbot/internal/store"
)

// fakeStore serves canned direct history and group archives.
type fakeStore struct {
	history []store.DirectMessage
	groups  map[string][]store.GroupMessage

	searched []string
}

func (f *fakeStore) UpsertUser(ctx context.Context, id int64, handle, displayName string) error {
	return nil
}

func (f *fakeStore) SaveDirectMessage(ctx context.Context, userID int64, role, content string, tokensUsed *int) error {
	return nil
}

func (f *fakeStore) RecentDirectMessages(ctx context.Context, userID int64, limit int) ([]store.DirectMessage, error) {
	if len(f.history) > limit {
		return f.history[len(f.history)-limit:], nil
	}
	return f.history, nil
}

func (f *fakeStore) ClearDirectMessages(ctx context.Context, userID int64) error { return nil }

func (f *fakeStore) SaveGroupMessage(ctx context.Context, msg *store.GroupMessage) error { return nil }

func (f *fakeStore) SearchGroupMessages(ctx context.Context, handle, keyword string, limit int) ([]store.GroupMessage, error) {
	f.searched = append(f.searched, handle)
	return f.groups[store.NormalizeHandle(handle)], nil
}

func (f *fakeStore) AggregateStats(ctx context.Context) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close()                         {}

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"no mentions here", nil},
		{"ask @bob about it", []string{"bob"}},
		{"@bob and @carol and @bob again", []string{"bob", "carol"}},
		{"@Bob then @bob", []string{"Bob"}},
		{"mail me bob@example.com", []string{"example"}},
		{"@weird-handle", []string{"weird"}},
	}
	for _, tc := range cases {
		got := ExtractMentions(tc.text)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractMentions(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func newContextBot(fs *fakeStore, historySize int) *Bot {
	return &Bot{store: fs, historySize: historySize}
}

func TestBuildContextNoMentions(t *testing.T) {
	fs := &fakeStore{
		history: []store.DirectMessage{
			{Role: store.RoleUser, Content: "earlier"},
			{Role: store.RoleAssistant, Content: "reply"},
			{Role: store.RoleUser, Content: "hello"},
		},
	}
	b := newContextBot(fs, 10)

	msgs, err := b.BuildContext(context.Background(), 1, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.Role == store.RoleSystem {
			t.Error("no system entry expected without mentions")
		}
	}
}

func TestBuildContextMentionWithoutArchiveMatchesNoMentionCase(t *testing.T) {
	fs := &fakeStore{
		history: []store.DirectMessage{{Role: store.RoleUser, Content: "@ghost around?"}},
	}
	b := newContextBot(fs, 10)

	withMention, err := b.BuildContext(context.Background(), 1, "@ghost around?")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := b.BuildContext(context.Background(), 1, "anyone around?")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(withMention, plain) {
		t.Errorf("empty mention changed the context: %+v vs %+v", withMention, plain)
	}
}

func TestBuildContextInjectsSingleSystemEntry(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		history: []store.DirectMessage{
			{Role: store.RoleUser, Content: "@bob deadline?"},
		},
		groups: map[string][]store.GroupMessage{
			// Newest first, as the store returns them.
			"bob": {
				{ChatTitle: "Project", Content: "pushed to friday", CreatedAt: now},
				{ChatTitle: "", Content: "deadline is tuesday", CreatedAt: now.Add(-time.Hour)},
				{ChatTitle: "Project", Content: "kickoff done", CreatedAt: now.Add(-2 * time.Hour)},
			},
		},
	}
	b := newContextBot(fs, 10)

	msgs, err := b.BuildContext(context.Background(), 1, "@bob deadline?")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (system + base)", len(msgs))
	}
	if msgs[0].Role != store.RoleSystem {
		t.Fatalf("first entry role = %s, want system", msgs[0].Role)
	}
	if msgs[1].Role != store.RoleUser || msgs[1].Content != "@bob deadline?" {
		t.Errorf("base context changed: %+v", msgs[1])
	}

	sys := msgs[0].Content
	if !strings.Contains(sys, "Messages from @bob:") {
		t.Errorf("system entry missing handle label: %q", sys)
	}
	for _, want := range []string{"kickoff done", "deadline is tuesday", "pushed to friday"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system entry missing %q", want)
		}
	}
	// Chronological order inside the excerpt.
	if strings.Index(sys, "kickoff done") > strings.Index(sys, "pushed to friday") {
		t.Error("excerpt lines are not chronological")
	}
	// Null chat title renders as a placeholder.
	if !strings.Contains(sys, "(untitled)") {
		t.Errorf("placeholder title missing: %q", sys)
	}
}

func TestBuildContextMultipleMentionsOneEntry(t *testing.T) {
	fs := &fakeStore{
		groups: map[string][]store.GroupMessage{
			"bob":   {{Content: "from bob"}},
			"carol": {{Content: "from carol"}},
		},
	}
	b := newContextBot(fs, 10)

	msgs, err := b.BuildContext(context.Background(), 1, "@bob @carol status?")
	if err != nil {
		t.Fatal(err)
	}
	systems := 0
	for _, m := range msgs {
		if m.Role == store.RoleSystem {
			systems++
			if !strings.Contains(m.Content, "from bob") || !strings.Contains(m.Content, "from carol") {
				t.Errorf("system entry missing a handle block: %q", m.Content)
			}
		}
	}
	if systems != 1 {
		t.Errorf("system entries = %d, want exactly 1", systems)
	}
}

func TestBuildContextBoundedByWindowSize(t *testing.T) {
	var history []store.DirectMessage
	for i := 0; i < 25; i++ {
		history = append(history, store.DirectMessage{Role: store.RoleUser, Content: "turn"})
	}
	fs := &fakeStore{
		history: history,
		groups:  map[string][]store.GroupMessage{"bob": {{Content: "hi"}}},
	}
	b := newContextBot(fs, 10)

	msgs, err := b.BuildContext(context.Background(), 1, "@bob hi")
	if err != nil {
		t.Fatal(err)
	}
	base := 0
	for _, m := range msgs {
		if m.Role != store.RoleSystem {
			base++
		}
	}
	if base != 10 {
		t.Errorf("base context = %d entries, want window size 10", base)
	}
}
