package context

import (
	"strings"
	"testing"

	"github.com/vgMonky/redbud/internal/conversation"
)

func TestAssemble_PrependsSystemPrompt(t *testing.T) {
	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}

	got := Assemble("be helpful", history)

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != conversation.RoleSystem || got[0].Content != "be helpful" {
		t.Fatalf("expected system prompt first, got %#v", got[0])
	}
	if got[1].Content != "hi" || got[2].Content != "hello" {
		t.Fatalf("history order not preserved: %#v", got)
	}
}

func TestAssemble_EmptyHistory(t *testing.T) {
	got := Assemble("sys", nil)
	if len(got) != 1 || got[0].Role != conversation.RoleSystem {
		t.Fatalf("expected only the system prompt, got %#v", got)
	}
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript(30, []conversation.Message{
		{Role: conversation.RoleSystem, Content: "sys prompt"},
		{Role: conversation.RoleUser, Content: "question"},
	})

	if !strings.HasPrefix(got, "Current memory window: 30 turns") {
		t.Fatalf("missing capacity header: %q", got)
	}
	if !strings.Contains(got, "SYSTEM:\nsys prompt") {
		t.Fatalf("missing system block: %q", got)
	}
	if !strings.Contains(got, "USER:\nquestion") {
		t.Fatalf("missing user block: %q", got)
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"short text stays whole", "hello", 10, []string{"hello"}},
		{"exact fit stays whole", "abcd", 4, []string{"abcd"}},
		{"long text splits", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"empty text", "", 4, []string{""}},
		{"non-positive max keeps text", "abc", 0, []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunks(tt.text, tt.maxChars)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d chunks, got %d: %#v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestChunks_RuneSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 50)
	chunks := Chunks(text, 100)
	for _, chunk := range chunks {
		if strings.ContainsRune(chunk, '�') {
			t.Fatalf("chunk split inside a rune: %q", chunk)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not reassemble to the original text")
	}
}
