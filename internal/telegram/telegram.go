package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cmdpkg "github.com/vgMonky/redbud/internal/commander"
)

// Telegram rejects sendMessage texts longer than 4096 characters; stay below it.
const maxMessageChars = 4000

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message
type Chat = cmdpkg.Chat
type Command = cmdpkg.Command

// GetUpdates calls the getUpdates API with long-poll timeout in seconds.
func (c *Client) GetUpdates(offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))

	resp, err := c.httpClient.Get(c.apiBase + "/getUpdates?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read getUpdates response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}

	if !tgResp.OK {
		return nil, nil
	}

	var updates []Update
	if err := json.Unmarshal(tgResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// SendMessage sends a text message to the given chat. Texts longer than the
// API limit are truncated; callers that need the full text send chunks.
func (c *Client) SendMessage(chatID int64, text string) error {
	limited := truncate(text, maxMessageChars)
	payload := fmt.Sprintf(`{"chat_id":%d,"text":%s}`, chatID, jsonString(limited))
	if err := c.post("/sendMessage", payload); err != nil {
		return fmt.Errorf("telegram sendMessage request failed: %w", err)
	}
	return nil
}

// SendChatAction sends a chat action such as "typing".
func (c *Client) SendChatAction(chatID int64, action string) error {
	payload := fmt.Sprintf(`{"chat_id":%d,"action":%s}`, chatID, jsonString(action))
	if err := c.post("/sendChatAction", payload); err != nil {
		return fmt.Errorf("telegram sendChatAction request failed: %w", err)
	}
	return nil
}

// SetMyCommands registers the bot's command menu.
func (c *Client) SetMyCommands(commands []cmdpkg.Command) error {
	body, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return fmt.Errorf("failed to marshal command menu: %w", err)
	}
	if err := c.post("/setMyCommands", string(body)); err != nil {
		return fmt.Errorf("telegram setMyCommands request failed: %w", err)
	}
	return nil
}

func (c *Client) post(path, payload string) error {
	resp, err := c.httpClient.Post(
		c.apiBase+path,
		"application/json",
		strings.NewReader(payload),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.ReadAll(resp.Body) // drain
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
