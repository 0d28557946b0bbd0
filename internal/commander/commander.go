package commander

// Commander is the messaging source abstraction the bot loop runs against.
type Commander interface {
	GetUpdates(offset int64, timeout int) ([]Update, error)
	SendMessage(chatID int64, text string) error
	SendChatAction(chatID int64, action string) error
	SetMyCommands(commands []Command) error
}

// Update represents an incoming update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	Chat Chat    `json:"chat"`
	Text *string `json:"text,omitempty"`
	Date int64   `json:"date"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// Command is one entry in the bot's command menu.
type Command struct {
	Name        string `json:"command"`
	Description string `json:"description"`
}
