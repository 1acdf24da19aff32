// Package telegram connects the relay to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/whisper-relay/internal/messenger"
)

// MenuButtonText is the label of the persistent reply-keyboard shortcut.
const MenuButtonText = "Menu"

const requestTimeout = 75 * time.Second

// Client implements messenger.Messenger on top of the Bot API.
type Client struct {
	api *tgbotapi.BotAPI
}

// New authenticates with the production Bot API.
func New(token string) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: requestTimeout})
}

// NewWithEndpoint authenticates against a custom API endpoint. endpoint
// must contain two %s verbs, for the token and the method name.
func NewWithEndpoint(token, endpoint string, httpClient *http.Client) (*Client, error) {
	tgbotapi.SetLogger(slogAdapter{})
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	slog.Info("Authorized on Telegram", "username", api.Self.UserName, "bot_id", api.Self.ID)
	return &Client{api: api}, nil
}

// API exposes the underlying Bot API client.
func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

// Send posts msg. Inline controls take precedence over the menu shortcut.
func (c *Client) Send(ctx context.Context, msg messenger.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	switch {
	case len(msg.Controls) > 0:
		out.ReplyMarkup = inlineMarkup(msg.Controls)
	case msg.MenuShortcut:
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(MenuButtonText)))
		kb.ResizeKeyboard = true
		out.ReplyMarkup = kb
	}

	sent, err := c.api.Send(out)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", msg.ChatID, err)
	}
	return sent.MessageID, nil
}

// ClearControls removes the inline keyboard from a sent message.
func (c *Client) ClearControls(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("clear controls of %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// AnswerQuery answers an inline query with article results.
func (c *Client) AnswerQuery(ctx context.Context, answer messenger.QueryAnswer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	results := make([]interface{}, 0, len(answer.Results))
	for _, r := range answer.Results {
		article := tgbotapi.NewInlineQueryResultArticle(r.ID, r.Title, r.MessageText)
		article.ThumbURL = r.ThumbURL
		if len(r.Controls) > 0 {
			markup := inlineMarkup(r.Controls)
			article.ReplyMarkup = &markup
		}
		results = append(results, article)
	}

	cfg := tgbotapi.InlineConfig{
		InlineQueryID: answer.QueryID,
		Results:       results,
		CacheTime:     answer.CacheTime,
		IsPersonal:    answer.Personal,
	}
	if _, err := c.api.Request(cfg); err != nil {
		return fmt.Errorf("answer inline query %s: %w", answer.QueryID, err)
	}
	return nil
}

// AnswerAction answers a callback query.
func (c *Client) AnswerAction(ctx context.Context, actionID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(actionID, text)); err != nil {
		return fmt.Errorf("answer callback %s: %w", actionID, err)
	}
	return nil
}

// ProfileImage returns the file id of the user's most recent profile
// photo, or "" when there is none.
func (c *Client) ProfileImage(ctx context.Context, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	photos, err := c.api.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{UserID: userID, Limit: 1})
	if err != nil {
		return "", fmt.Errorf("get profile photos of %d: %w", userID, err)
	}
	if len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}
	return photos.Photos[0][0].FileID, nil
}

// SetWebhook registers url as the update endpoint.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook config: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes any registered webhook so long polling can run.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

func inlineMarkup(kb messenger.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.SwitchQuery != "" {
				q := b.SwitchQuery
				buttons = append(buttons, tgbotapi.InlineKeyboardButton{Text: b.Text, SwitchInlineQueryCurrentChat: &q})
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Payload))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

type slogAdapter struct{}

func (slogAdapter) Println(v ...interface{}) {
	slog.Debug(fmt.Sprint(v...), "component", "tgbotapi")
}

func (slogAdapter) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "tgbotapi")
}

var _ messenger.Messenger = (*Client)(nil)
