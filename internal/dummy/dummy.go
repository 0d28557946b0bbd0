// Package dummy provides scripted in-memory stand-ins for the Telegram
// commander and the completion provider, for offline smoke runs and loop
// tests. Scripts are comma-separated actions: "ok", "err:<message>",
// "sleep:<ms>", "msg:<text>". The last action repeats once the script is
// exhausted.
package dummy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/vgMonky/redbud/internal/commander"
	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/model"
)

// ChatID is the chat all scripted updates arrive from.
const ChatID int64 = 1

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepFor(arg string) {
	ms, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Commander is a scripted commander.Commander. Its poll script drives
// GetUpdates; its send script drives SendMessage outcomes. Sent messages are
// recorded for inspection.
type Commander struct {
	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	updateID int64
	sent     []string
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, fmt.Errorf("dummy commander poll script: %w", err)
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, fmt.Errorf("dummy commander send script: %w", err)
	}
	return &Commander{poll: poll, send: send}, nil
}

func (c *Commander) GetUpdates(offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander: %s", a.arg)
	case "sleep":
		sleepFor(a.arg)
		return nil, nil
	case "msg":
		c.updateID++
		text := a.arg
		return []cmdpkg.Update{{
			UpdateID: c.updateID,
			Message: &cmdpkg.Message{
				Chat: cmdpkg.Chat{ID: ChatID},
				Text: &text,
				Date: time.Now().Unix(),
			},
		}}, nil
	default:
		return nil, nil
	}
}

func (c *Commander) SendMessage(chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.send.next()
	if a.kind == "err" {
		return fmt.Errorf("dummy commander send: %s", a.arg)
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *Commander) SendChatAction(chatID int64, action string) error {
	return nil
}

func (c *Commander) SetMyCommands(commands []cmdpkg.Command) error {
	return nil
}

// Sent returns a copy of everything delivered through SendMessage.
func (c *Commander) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// Provider is a scripted model.Provider. "msg:<text>" replies with the text,
// "ok" echoes the last user message.
type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
}

func NewProvider(modelName, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, fmt.Errorf("dummy provider script: %w", err)
	}
	return &Provider{model: modelName, script: runner}, nil
}

func (p *Provider) ChatCompletion(messages []conversation.Message) (model.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.script.next()
	switch a.kind {
	case "err":
		return model.CompletionResponse{}, fmt.Errorf("dummy provider: %s", a.arg)
	case "sleep":
		sleepFor(a.arg)
	}

	content := a.arg
	if a.kind != "msg" || content == "" {
		content = "echo: " + lastUserContent(messages)
	}
	return model.CompletionResponse{
		Content:      content,
		InputTokens:  estimateTokens(messages),
		OutputTokens: (len([]rune(content)) + 3) / 4,
	}, nil
}

func lastUserContent(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func estimateTokens(messages []conversation.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len([]rune(m.Content))
	}
	return (chars + 3) / 4
}
