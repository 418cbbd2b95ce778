package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/notify"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{"resolution_fallback"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), domain.ResolutionEvent{Type: domain.EventMarketResolved, MarketID: 1}))
	require.NoError(t, n.Notify(context.Background(), domain.ResolutionEvent{Type: domain.EventResolutionFallback, MarketID: 2}))

	assert.Equal(t, []string{"Market #2 fell back to off-chain resolution"}, s.titles)
}

func TestNotifier_JoinsSenderErrors(t *testing.T) {
	ok := &recordingSender{name: "ok"}
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	n := notify.NewNotifier([]notify.Sender{bad, ok}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, ok.titles, 1)
}

func TestFormat(t *testing.T) {
	title, body := notify.Format(domain.ResolutionEvent{
		Type:       domain.EventMarketResolved,
		MarketID:   42,
		Outcome:    domain.OutcomeYes,
		Mechanism:  domain.MechanismFastPrice,
		Confidence: 0.99,
		TxHash:     "0xabc",
		OnChain:    true,
	})
	assert.Equal(t, "Market #42 resolved Yes", title)
	assert.Contains(t, body, "tx: 0xabc")
}

func TestTelegramSender(t *testing.T) {
	var got struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("TOKEN", "chat-1").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Market #1 resolved Yes", "BTC > 50k & rising?"))
	assert.Equal(t, "chat-1", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Equal(t, "<b>Market #1 resolved Yes</b>\nBTC &gt; 50k &amp; rising?", got.Text)
}

func TestTelegramSender_ErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := notify.NewTelegramSender("SECRET", "x").WithBaseURL(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")

	srv.Close()
	err = notify.NewTelegramSender("SECRET", "x").WithBaseURL(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestDiscordSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := notify.NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDiscordSender_Embed(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Market #3 disputed", "reason"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Market #3 disputed", got.Embeds[0].Title)
	assert.Equal(t, "reason", got.Embeds[0].Description)
}
