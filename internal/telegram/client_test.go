package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/whisper-relay/internal/messenger"
)

type call struct {
	Method string
	Form   map[string]string
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		form := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, call{Method: method, Form: form})
		f.mu.Unlock()

		var result string
		switch method {
		case "getMe":
			result = `{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}`
		case "sendMessage":
			result = fmt.Sprintf(`{"message_id":42,"date":0,"chat":{"id":%s,"type":"private"}}`, form["chat_id"])
		case "getUserProfilePhotos":
			if form["user_id"] == "5" {
				result = `{"total_count":1,"photos":[[{"file_id":"photo-5","file_unique_id":"u","width":100,"height":100}]]}`
			} else {
				result = `{"total_count":0,"photos":[]}`
			}
		default:
			result = "true"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
	}
}

func (f *fakeAPI) last(method string) call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i]
		}
	}
	return call{}
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	fake := &fakeAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)
	return c, fake
}

func TestSendWithInlineControls(t *testing.T) {
	c, fake := newTestClient(t)

	id, err := c.Send(context.Background(), messenger.Message{
		ChatID: 5,
		Text:   "hello\n\nпроверено",
		Controls: messenger.Row(
			messenger.Button{Text: "Отправить", Payload: "send"},
			messenger.Button{Text: "Выбрать получателя", SwitchQuery: "list"},
		),
		MenuShortcut: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	sent := fake.last("sendMessage")
	assert.Equal(t, "5", sent.Form["chat_id"])
	assert.Equal(t, "hello\n\nпроверено", sent.Form["text"])
	assert.Empty(t, sent.Form["parse_mode"])

	var markup struct {
		InlineKeyboard [][]map[string]any `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(sent.Form["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "send", markup.InlineKeyboard[0][0]["callback_data"])
	assert.Equal(t, "list", markup.InlineKeyboard[0][1]["switch_inline_query_current_chat"])
}

func TestSendWithMenuShortcut(t *testing.T) {
	c, fake := newTestClient(t)

	_, err := c.Send(context.Background(), messenger.Message{ChatID: 5, Text: "Отменено", MenuShortcut: true})
	require.NoError(t, err)

	markup := fake.last("sendMessage").Form["reply_markup"]
	assert.Contains(t, markup, `"keyboard"`)
	assert.Contains(t, markup, `"text":"Menu"`)
	assert.Contains(t, markup, `"resize_keyboard":true`)
}

func TestClearControlsAndAnswerAction(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ClearControls(ctx, 5, 9))
	edit := fake.last("editMessageReplyMarkup")
	assert.Equal(t, "9", edit.Form["message_id"])
	assert.Contains(t, edit.Form["reply_markup"], `"inline_keyboard":[]`)

	require.NoError(t, c.AnswerAction(ctx, "cb-1", "Нечего отправлять"))
	ack := fake.last("answerCallbackQuery")
	assert.Equal(t, "cb-1", ack.Form["callback_query_id"])
	assert.Equal(t, "Нечего отправлять", ack.Form["text"])
}

func TestAnswerQuery(t *testing.T) {
	c, fake := newTestClient(t)

	err := c.AnswerQuery(context.Background(), messenger.QueryAnswer{
		QueryID: "iq",
		Results: []messenger.QueryResult{{
			ID:          "22",
			Title:       "Bob",
			MessageText: "Написать Bob",
			ThumbURL:    "https://example.org/b.jpg",
			Controls:    messenger.Row(messenger.Button{Text: "Написать", Payload: "write 22"}),
		}},
		CacheTime: 10,
		Personal:  true,
	})
	require.NoError(t, err)

	got := fake.last("answerInlineQuery")
	assert.Equal(t, "iq", got.Form["inline_query_id"])
	assert.Equal(t, "10", got.Form["cache_time"])
	assert.Equal(t, "true", got.Form["is_personal"])

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Form["results"]), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "article", results[0]["type"])
	assert.Equal(t, "Bob", results[0]["title"])
	assert.Equal(t, "https://example.org/b.jpg", results[0]["thumb_url"])
}

func TestAnswerQueryEmpty(t *testing.T) {
	c, fake := newTestClient(t)
	require.NoError(t, c.AnswerQuery(context.Background(), messenger.QueryAnswer{QueryID: "iq", Personal: true}))
	assert.Equal(t, "[]", fake.last("answerInlineQuery").Form["results"])
}

func TestProfileImage(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ref, err := c.ProfileImage(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "photo-5", ref)

	ref, err = c.ProfileImage(ctx, 6)
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	c, fake := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, messenger.Message{ChatID: 5, Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.last("sendMessage").Method)
}

func TestWebhookHandlerDispatches(t *testing.T) {
	c, _ := newTestClient(t)
	d := &recordingDispatcher{}
	h := NewWebhookHandler(c, d)

	body := `{"update_id":1,"message":{"message_id":3,"date":0,"from":{"id":7,"is_bot":false,"first_name":"Ann"},"chat":{"id":7,"type":"private"},"text":"hello"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/s", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.events, 1)
	assert.Equal(t, "hello", d.events[0].Text)
}

func TestWebhookHandlerRejectsGarbage(t *testing.T) {
	c, _ := newTestClient(t)
	d := &recordingDispatcher{}
	rec := httptest.NewRecorder()
	NewWebhookHandler(c, d).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/s", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, d.events)
}
