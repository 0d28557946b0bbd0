package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmdpkg "github.com/vgMonky/redbud/internal/commander"
	"github.com/vgMonky/redbud/internal/config"
	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/dummy"
)

func testConfig() config.Config {
	return config.Config{
		Timeout:              0,
		SleepSeconds:         0,
		PendingWindowSeconds: 600,
		PendingMaxMessages:   50,
		HistoryMaxTurns:      conversation.DefaultMaxTurns,
		SystemPrompt:         "You are a helpful assistant that remembers the conversation.",
		Model:                "deepseek-chat",
		Provider:             "dummy",
	}
}

func newTestBot(t *testing.T, pollScript, providerScript string) (*Bot, *dummy.Commander, *conversation.Store) {
	t.Helper()
	commander, err := dummy.NewCommander(pollScript, "ok")
	require.NoError(t, err)
	provider, err := dummy.NewProvider("deepseek-chat", providerScript)
	require.NoError(t, err)
	store := conversation.NewStore(conversation.DefaultMaxTurns)
	return New("test", testConfig(), commander, provider, store, nil), commander, store
}

func TestHandleMessage_ChatFlow(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat hello"))

	history := store.History(dummy.ChatID)
	require.Len(t, history, 2)
	assert.Equal(t, conversation.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, conversation.RoleAssistant, history[1].Role)
	assert.Equal(t, "echo: hello", history[1].Content)

	require.Len(t, commander.Sent(), 1)
	assert.Equal(t, "echo: hello", commander.Sent()[0])
}

func TestHandleMessage_ChatEmptyPrompt(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat"))

	assert.Empty(t, store.History(dummy.ChatID))
	require.Len(t, commander.Sent(), 1)
	assert.Contains(t, commander.Sent()[0], "Usage: /chat")
}

func TestHandleMessage_ChatProviderError(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "err:boom")

	err := b.handleMessage(dummy.ChatID, "/chat hello")
	require.Error(t, err)

	// The user turn stays; no assistant turn was recorded.
	history := store.History(dummy.ChatID)
	require.Len(t, history, 1)
	assert.Equal(t, conversation.RoleUser, history[0].Role)

	require.Len(t, commander.Sent(), 1)
	assert.Contains(t, commander.Sent()[0], "Error:")
}

func TestHandleMessage_ChatChunksLongReply(t *testing.T) {
	long := strings.Repeat("a", replyChunkChars+10)
	b, commander, _ := newTestBot(t, "ok", "msg:"+long)

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat tell me everything"))

	sent := commander.Sent()
	require.Len(t, sent, 2)
	assert.Len(t, sent[0], replyChunkChars)
	assert.Len(t, sent[1], 10)
	assert.Equal(t, long, sent[0]+sent[1])
}

func TestHandleMessage_ChatID(t *testing.T) {
	b, commander, _ := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chatid"))

	require.Len(t, commander.Sent(), 1)
	assert.Equal(t, fmt.Sprintf("Chat ID is: %d", dummy.ChatID), commander.Sent()[0])
}

func TestHandleMessage_Wipe(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")
	store.AddMessage(dummy.ChatID, conversation.RoleUser, "remember this")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat_wipe"))

	assert.Empty(t, store.History(dummy.ChatID))
	require.Len(t, commander.Sent(), 1)
	assert.Equal(t, "Memory wiped for this chat.", commander.Sent()[0])
}

func TestHandleMessage_Context(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")
	store.AddMessage(dummy.ChatID, conversation.RoleUser, "what is Go?")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat_context"))

	require.Len(t, commander.Sent(), 1)
	out := commander.Sent()[0]
	assert.Contains(t, out, "Current memory window: 30 turns")
	assert.Contains(t, out, "SYSTEM:")
	assert.Contains(t, out, "what is Go?")
}

func TestHandleMessage_RangeShow(t *testing.T) {
	b, commander, _ := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat_range"))

	require.Len(t, commander.Sent(), 1)
	assert.Contains(t, commander.Sent()[0], "Current memory range: 30 turns")
}

func TestHandleMessage_RangeSet(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/chat_range 5"))

	assert.Equal(t, 5, store.Capacity(dummy.ChatID))
	require.Len(t, commander.Sent(), 1)
	assert.Contains(t, commander.Sent()[0], "Old: 30 turns")
	assert.Contains(t, commander.Sent()[0], "New: 5 turns")
}

func TestHandleMessage_RangeInvalid(t *testing.T) {
	for _, arg := range []string{"0", "1001", "-3", "abc"} {
		t.Run(arg, func(t *testing.T) {
			b, commander, store := newTestBot(t, "ok", "ok")

			require.NoError(t, b.handleMessage(dummy.ChatID, "/chat_range "+arg))

			assert.Equal(t, conversation.DefaultMaxTurns, store.Capacity(dummy.ChatID))
			require.Len(t, commander.Sent(), 1)
			assert.Equal(t, invalidRangeReply, commander.Sent()[0])
		})
	}
}

func TestHandleMessage_Help(t *testing.T) {
	b, commander, _ := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "/help"))

	require.Len(t, commander.Sent(), 1)
	for _, c := range Commands() {
		assert.Contains(t, commander.Sent()[0], "/"+c.Name)
	}
}

func TestHandleMessage_IgnoresPlainText(t *testing.T) {
	b, commander, store := newTestBot(t, "ok", "ok")

	require.NoError(t, b.handleMessage(dummy.ChatID, "just chatting"))

	assert.Empty(t, commander.Sent())
	assert.Empty(t, store.History(dummy.ChatID))
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs string
	}{
		{"/chat hi there", "chat", "hi there"},
		{"/chat@redbud_bot hi", "chat", "hi"},
		{"/help", "help", ""},
		{"/chat_range  42 ", "chat_range", "42"},
		{"hello", "", "hello"},
		{"  /chatid  ", "chatid", ""},
	}
	for _, tt := range tests {
		name, args := splitCommand(tt.text)
		assert.Equal(t, tt.wantName, name, "text=%q", tt.text)
		assert.Equal(t, tt.wantArgs, args, "text=%q", tt.text)
	}
}

func TestRun_ProcessesUpdatesUntilCanceled(t *testing.T) {
	b, commander, store := newTestBot(t, "msg:/chat hi,sleep:10", "ok")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := b.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, store.History(dummy.ChatID), 2)
	require.NotEmpty(t, commander.Sent())
	assert.Equal(t, "echo: hi", commander.Sent()[0])
}

type stubCommander struct {
	updates []cmdpkg.Update
}

func (s *stubCommander) GetUpdates(offset int64, timeout int) ([]cmdpkg.Update, error) {
	return s.updates, nil
}

func (s *stubCommander) SendMessage(chatID int64, text string) error      { return nil }
func (s *stubCommander) SendChatAction(chatID int64, action string) error { return nil }
func (s *stubCommander) SetMyCommands(commands []cmdpkg.Command) error    { return nil }

func pendingUpdate(id int64, age time.Duration) cmdpkg.Update {
	text := "/chat pending"
	return cmdpkg.Update{
		UpdateID: id,
		Message: &cmdpkg.Message{
			Chat: cmdpkg.Chat{ID: dummy.ChatID},
			Text: &text,
			Date: time.Now().Add(-age).Unix(),
		},
	}
}

func TestBootstrapOffset(t *testing.T) {
	cfg := testConfig()

	t.Run("no pending updates", func(t *testing.T) {
		b := New("test", cfg, &stubCommander{}, nil, conversation.NewStore(0), nil)
		offset, err := b.bootstrapOffset()
		require.NoError(t, err)
		assert.Equal(t, int64(0), offset)
	})

	t.Run("stale backlog skipped entirely", func(t *testing.T) {
		stub := &stubCommander{updates: []cmdpkg.Update{
			pendingUpdate(10, 2*time.Hour),
			pendingUpdate(11, 1*time.Hour),
		}}
		b := New("test", cfg, stub, nil, conversation.NewStore(0), nil)
		offset, err := b.bootstrapOffset()
		require.NoError(t, err)
		assert.Equal(t, int64(12), offset)
	})

	t.Run("recent updates kept", func(t *testing.T) {
		stub := &stubCommander{updates: []cmdpkg.Update{
			pendingUpdate(10, 2*time.Hour),
			pendingUpdate(11, 30*time.Second),
			pendingUpdate(12, 10*time.Second),
		}}
		b := New("test", cfg, stub, nil, conversation.NewStore(0), nil)
		offset, err := b.bootstrapOffset()
		require.NoError(t, err)
		assert.Equal(t, int64(11), offset)
	})

	t.Run("recent backlog capped", func(t *testing.T) {
		capped := cfg
		capped.PendingMaxMessages = 2
		stub := &stubCommander{updates: []cmdpkg.Update{
			pendingUpdate(10, 30*time.Second),
			pendingUpdate(11, 20*time.Second),
			pendingUpdate(12, 10*time.Second),
		}}
		b := New("test", capped, stub, nil, conversation.NewStore(0), nil)
		offset, err := b.bootstrapOffset()
		require.NoError(t, err)
		assert.Equal(t, int64(11), offset)
	})
}
