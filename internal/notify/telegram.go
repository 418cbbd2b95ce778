package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// telegramMaxText is the Bot API limit on message length.
const telegramMaxText = 4096

// TelegramSender posts to one chat through the Bot API sendMessage method.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramSender returns a sender for bot token posting into chatID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  defaultHTTPClient(),
	}
}

// WithBaseURL overrides the Bot API host.
func (t *TelegramSender) WithBaseURL(u string) *TelegramSender {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// Name implements Sender.
func (t *TelegramSender) Name() string { return "telegram" }

// Send implements Sender. The title is bold; both parts are HTML escaped so
// market questions cannot break the markup.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := telegramMessage{
		ChatID:                t.chatID,
		Text:                  truncate("<b>"+html.EscapeString(title)+"</b>\n"+html.EscapeString(message), telegramMaxText),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	body, err := postJSON(ctx, t.client, "telegram", t.baseURL+"/bot"+t.token+"/sendMessage", msg)
	if err != nil {
		// The token is part of the URL; keep it out of logs.
		return errors.New(strings.ReplaceAll(err.Error(), t.token, "***"))
	}

	var reply telegramReply
	if len(body) > 0 && json.Unmarshal(body, &reply) == nil && !reply.OK {
		return fmt.Errorf("telegram: rejected: %s", reply.Description)
	}
	return nil
}
