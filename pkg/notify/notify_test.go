package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/database"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/twitter"
)

type stubChannel struct {
	name string
	err  error
	got  []Message
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(ctx context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func TestDispatcherContinuesAfterFailure(t *testing.T) {
	log := logger.NewTestLogger()
	broken := &stubChannel{name: "broken", err: errors.New("boom")}
	ok := &stubChannel{name: "ok"}
	d := NewDispatcher(log, broken, ok)

	err := d.Send(context.Background(), Message{Kind: "favorite", Body: "2 added"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
	assert.Len(t, broken.got, 1)
	assert.Len(t, ok.got, 1, "later channels still receive the message")
	assert.True(t, log.HasMessage("Notification channel failed"))
	assert.Equal(t, []string{"broken", "ok"}, d.Channels())
}

func TestDispatcherWithoutChannels(t *testing.T) {
	d := NewDispatcher(logger.NewNopLogger())
	assert.NoError(t, d.Send(context.Background(), Message{}))
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "Favorite\nadded 1", Message{Title: "Favorite", Body: "added 1\n"}.Text())
	assert.Equal(t, "added 1", Message{Body: "added 1"}.Text())
}

type fakePoster struct {
	text string
	err  error
}

func (f *fakePoster) UpdateStatus(ctx context.Context, text, inReplyTo string) (*twitter.Tweet, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return &twitter.Tweet{IDStr: "9001"}, nil
}

type fakeRecorder struct {
	targets []database.PendingTarget
}

func (f *fakeRecorder) AddPending(ctx context.Context, p database.PendingTarget) error {
	f.targets = append(f.targets, p)
	return nil
}

func TestReplyChannelRecordsPendingTarget(t *testing.T) {
	poster := &fakePoster{}
	rec := &fakeRecorder{}
	ch := NewReplyChannel(poster, rec, "@owner")
	now := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	ch.now = func() time.Time { return now }

	err := ch.Send(context.Background(), Message{Title: "Favorite", Body: "added 2", Added: 2, Removed: 1})
	require.NoError(t, err)

	assert.Equal(t, "@owner Favorite\nadded 2", poster.text)
	require.Len(t, rec.targets, 1)
	assert.Equal(t, database.PendingTarget{
		PostID:    "9001",
		CreatedAt: now,
		Body:      poster.text,
		Added:     2,
		Removed:   1,
	}, rec.targets[0])
}

func TestReplyChannelPostFailureRecordsNothing(t *testing.T) {
	rec := &fakeRecorder{}
	ch := NewReplyChannel(&fakePoster{err: errors.New("403")}, rec, "owner")

	assert.Error(t, ch.Send(context.Background(), Message{Body: "x"}))
	assert.Empty(t, rec.targets)
}

func TestReplyIsTruncated(t *testing.T) {
	poster := &fakePoster{}
	ch := NewReplyChannel(poster, nil, "")
	require.NoError(t, ch.Send(context.Background(), Message{Body: strings.Repeat("あ", 400)}))
	assert.Equal(t, maxReplyLength, utf8.RuneCountInString(poster.text))
}

func TestDiscordAndSlackPayloads(t *testing.T) {
	var bodies []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		bodies = append(bodies, payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	msg := Message{Title: "Retweet", Body: "added 3"}
	require.NoError(t, NewDiscordChannel(server.URL, nil).Send(context.Background(), msg))
	require.NoError(t, NewSlackChannel(server.URL, nil).Send(context.Background(), msg))

	require.Len(t, bodies, 2)
	assert.Equal(t, "Retweet\nadded 3", bodies[0]["content"])
	assert.Equal(t, "Retweet\nadded 3", bodies[1]["text"])
}

func TestLineNotifySendsTokenAndForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(raw))
		assert.NoError(t, err)
		assert.Equal(t, "\nadded 1", form.Get("message"))
	}))
	defer server.Close()

	ch := NewLineNotifyChannel(server.URL, "secret", nil)
	assert.Equal(t, "line", ch.Name())
	require.NoError(t, ch.Send(context.Background(), Message{Body: "added 1"}))
}

func TestWebhookReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewDiscordChannel(server.URL, nil).Send(context.Background(), Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "invalid webhook")
}

func TestDesktopCommands(t *testing.T) {
	name, args, err := desktopCommand("linux", "Favorite", "added 2")
	require.NoError(t, err)
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{"Favorite", "added 2"}, args)

	name, args, err = desktopCommand("darwin", `say "hi"`, "ok")
	require.NoError(t, err)
	assert.Equal(t, "osascript", name)
	assert.Equal(t, `display notification "ok" with title "say \"hi\""`, args[1])

	_, _, err = desktopCommand("plan9", "a", "b")
	assert.Error(t, err)
}

func TestDesktopChannelUsesRunner(t *testing.T) {
	var called []string
	ch := &DesktopChannel{goos: "linux", run: func(ctx context.Context, name string, args ...string) error {
		called = append([]string{name}, args...)
		return nil
	}}
	require.True(t, ch.Supported())
	require.NoError(t, ch.Send(context.Background(), Message{Body: "added 1"}))
	assert.Equal(t, []string{"notify-send", "mediakeeper", "added 1"}, called)
}
