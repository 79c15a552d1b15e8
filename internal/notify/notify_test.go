package notify

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramNotifier_SendsToChat(t *testing.T) {
	fs := &fakeSender{}
	n := newTelegramNotifier(fs, 4242, nil)

	n.Show("Water plants", "Tap to open checklist")

	require.Len(t, fs.sent, 1)
	assert.Equal(t, int64(4242), fs.sent[0].ChatID)
	assert.Equal(t, "⏰ Water plants\nTap to open checklist", fs.sent[0].Text)
}

func TestTelegramNotifier_LogsSendFailure(t *testing.T) {
	var buf bytes.Buffer
	fs := &fakeSender{err: errors.New("forbidden: bot was blocked")}
	n := newTelegramNotifier(fs, 1, log.New(&buf, "", 0))

	n.Show("Stretch", "")

	assert.Contains(t, buf.String(), `"msg":"telegram_send_failed"`)
	assert.Contains(t, buf.String(), "bot was blocked")
}

func TestNewTelegramNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewTelegramNotifier("", 1, nil)
	assert.Error(t, err)
	_, err = NewTelegramNotifier("123:abc", 0, nil)
	assert.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "only body", FormatMessage("", "only body"))
	assert.Equal(t, "only title", FormatMessage("only title", ""))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	NewLogNotifier(log.New(&buf, "", 0)).Show("Vitamins", "with breakfast")

	assert.Contains(t, buf.String(), `"msg":"notification"`)
	assert.Contains(t, buf.String(), `"title":"Vitamins"`)
}

func TestMulti_FansOut(t *testing.T) {
	var mu sync.Mutex
	var got []string
	rec := func(name string) alarm.Notifier {
		return alarm.NotifierFunc(func(title, _ string) {
			mu.Lock()
			got = append(got, name+":"+title)
			mu.Unlock()
		})
	}

	Multi{rec("a"), nil, rec("b")}.Show("Run", "")

	assert.ElementsMatch(t, []string{"a:Run", "b:Run"}, got)
}

func TestTelegramNotifier_SendTimesOut(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Routine","username":"routine_bot"}}`))
			return
		}
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	logs := &bytes.Buffer{}
	n, err := dialTelegram("123:abc", srv.URL+"/bot%s/%s", 100*time.Millisecond, 42, log.New(logs, "", 0))
	require.NoError(t, err)

	returned := make(chan struct{})
	go func() {
		n.Show("Stretch", "08:00")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("Show hung on an unresponsive Bot API")
	}
	assert.Contains(t, logs.String(), "telegram_send_failed")
}
