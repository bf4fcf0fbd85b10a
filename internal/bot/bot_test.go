package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"tgreddit/internal/config"
	"tgreddit/internal/model"
	"tgreddit/internal/reddit"
	"tgreddit/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup interface{}
}

type upload struct {
	Endpoint string
	Params   tgbotapi.Params
	Files    []tgbotapi.RequestFile
}

type mockAPI struct {
	mu        sync.Mutex
	sent      []sentMsg
	photos    []tgbotapi.PhotoConfig
	uploads   []upload
	groups    []tgbotapi.MediaGroupConfig
	callbacks []string
	updates   chan tgbotapi.Update
	sendErr   error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		m.sent = append(m.sent, sentMsg{ChatID: v.ChatID, Text: v.Text, Markup: v.ReplyMarkup})
	case tgbotapi.PhotoConfig:
		m.photos = append(m.photos, v)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		m.callbacks = append(m.callbacks, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, cfg)
	return nil, nil
}

func (m *mockAPI) UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, upload{Endpoint: endpoint, Params: params, Files: files})
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if m.updates == nil {
		m.updates = make(chan tgbotapi.Update)
	}
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockSource struct {
	posts     []model.Post
	fetchErr  error
	nameErr   error
	gotParams model.ListingParams
}

func (m *mockSource) Fetch(_ context.Context, _ string, params model.ListingParams) ([]model.Post, error) {
	m.gotParams = params
	return m.posts, m.fetchErr
}

func (m *mockSource) SubredditName(_ context.Context, name string) (string, error) {
	if m.nameErr != nil {
		return "", m.nameErr
	}
	return strings.ToLower(name), nil
}

type mockDispatcher struct {
	delivered []string
	err       error
	release   chan struct{}
}

func (m *mockDispatcher) Dispatch(_ context.Context, _ int64, post *model.Post) error {
	if m.release != nil {
		<-m.release
	}
	m.delivered = append(m.delivered, post.ID)
	return m.err
}

// --- helpers ---

func newTestBot(t *testing.T, source *mockSource) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:", storage.Options{})
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if source == nil {
		source = &mockSource{}
	}
	api := &mockAPI{}
	b := newBot(api, store, source, &config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b, api, store
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func makeMsg(userID int64, cmd, args string) *tgbotapi.Message {
	text := "/" + cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
		},
	}
}

// --- handler tests ---

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleHelp(context.Background(), 100)
	requireContains(t, api.lastText(), "/sub <subreddit>")
	requireContains(t, api.lastText(), "/listsubs")
}

func TestHandleSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("empty args", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /sub")
	})

	t.Run("bad option", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "pics limit=0")
		requireContains(t, api.lastText(), "limit must be between 1 and 100")
	})

	t.Run("no such subreddit", func(t *testing.T) {
		b, api, store := newTestBot(t, &mockSource{nameErr: reddit.ErrNotFound})
		b.handleSubscribe(ctx, 100, "nope")
		if diff := cmp.Diff(msgNoSuchSubreddit, api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
		subs, _ := store.ListSubscriptions(ctx, 100)
		if diff := cmp.Diff(0, len(subs)); diff != "" {
			t.Errorf("subscription count (-want +got):\n%s", diff)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockSource{nameErr: errors.New("timeout")})
		b.handleSubscribe(ctx, 100, "pics")
		if diff := cmp.Diff(msgInternalError, api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})

	t.Run("success stores options", func(t *testing.T) {
		b, api, store := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "r/Pics limit=3 time=week filter=image")
		if diff := cmp.Diff("Subscribed to r/pics", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}

		subs, err := store.ListSubscriptions(ctx, 100)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(subs) != 1 {
			t.Fatalf("got %d subscriptions, want 1", len(subs))
		}
		limit, period, filter := 3, model.TimeWeek, model.PostTypeImage
		want := model.Subscription{ChatID: 100, Subreddit: "pics", Limit: &limit, Time: &period, Filter: &filter}
		got := subs[0]
		got.CreatedAt = want.CreatedAt
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("subscription (-want +got):\n%s", diff)
		}
	})

	t.Run("already subscribed", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "pics")
		b.handleSubscribe(ctx, 100, "pics")
		if diff := cmp.Diff("Already subscribed to r/pics", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})
}

func TestHandleUnsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleUnsubscribe(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /unsub")
	})

	t.Run("not subscribed", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleUnsubscribe(ctx, 100, "pics")
		if diff := cmp.Diff("Not subscribed to r/pics", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})

	t.Run("removes case-insensitively", func(t *testing.T) {
		b, api, store := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "pics")
		b.handleUnsubscribe(ctx, 100, "/r/PICS/")
		if diff := cmp.Diff("Unsubscribed from r/PICS", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
		subs, _ := store.ListSubscriptions(ctx, 100)
		if diff := cmp.Diff(0, len(subs)); diff != "" {
			t.Errorf("subscription count (-want +got):\n%s", diff)
		}
	})
}

func TestHandleListSubscriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleListSubscriptions(ctx, 100)
		requireContains(t, api.lastText(), "no subscriptions yet")
		if api.sent[0].Markup != nil {
			t.Errorf("expected no keyboard, got %v", api.sent[0].Markup)
		}
	})

	t.Run("with subscriptions", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "pics limit=2")
		b.handleSubscribe(ctx, 100, "videos filter=video")
		b.handleSubscribe(ctx, 200, "other")
		api.reset()

		b.handleListSubscriptions(ctx, 100)
		reply := api.lastText()
		requireContains(t, reply, "r/pics limit=2")
		requireContains(t, reply, "r/videos filter=video")
		if strings.Contains(reply, "r/other") {
			t.Errorf("reply contains another chat's subscription:\n%s", reply)
		}

		kb, ok := api.sent[0].Markup.(*tgbotapi.InlineKeyboardMarkup)
		if !ok {
			t.Fatalf("markup type %T, want *InlineKeyboardMarkup", api.sent[0].Markup)
		}
		var data []string
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				data = append(data, *btn.CallbackData)
			}
		}
		want := []string{"get:pics", "unsub:pics", "get:videos", "unsub:videos"}
		if diff := cmp.Diff(want, data); diff != "" {
			t.Errorf("callback data (-want +got):\n%s", diff)
		}
	})
}

func TestHandleGet(t *testing.T) {
	ctx := context.Background()
	posts := []model.Post{
		{ID: "a", Type: model.PostTypeImage},
		{ID: "b", Type: model.PostTypeLink},
		{ID: "c", Type: model.PostTypeImage},
	}

	t.Run("bad args", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.SetDispatcher(&mockDispatcher{})
		b.handleGet(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /get")
	})

	t.Run("delivers filtered posts", func(t *testing.T) {
		src := &mockSource{posts: posts}
		b, _, store := newTestBot(t, src)
		d := &mockDispatcher{}
		b.SetDispatcher(d)

		b.handleGet(ctx, 100, "pics limit=3 filter=image")

		if diff := cmp.Diff([]string{"a", "c"}, d.delivered); diff != "" {
			t.Errorf("delivered (-want +got):\n%s", diff)
		}
		filter := model.PostTypeImage
		wantParams := model.ListingParams{Limit: 3, Time: model.DefaultTime, Filter: &filter}
		if diff := cmp.Diff(wantParams, src.gotParams); diff != "" {
			t.Errorf("params (-want +got):\n%s", diff)
		}
		seen, _ := store.HasAnySeenPost(ctx, 100, "pics")
		if seen {
			t.Error("/get must not record seen posts")
		}
	})

	t.Run("config defaults", func(t *testing.T) {
		src := &mockSource{posts: posts}
		b, _, _ := newTestBot(t, src)
		b.cfg = &config.Config{DefaultLimit: 5, DefaultTime: "month", DefaultFilter: "link"}
		d := &mockDispatcher{}
		b.SetDispatcher(d)

		b.handleGet(ctx, 100, "pics")

		if diff := cmp.Diff([]string{"b"}, d.delivered); diff != "" {
			t.Errorf("delivered (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(5, src.gotParams.Limit); diff != "" {
			t.Errorf("limit (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(model.TimeMonth, src.gotParams.Time); diff != "" {
			t.Errorf("time (-want +got):\n%s", diff)
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockSource{posts: posts})
		b.SetDispatcher(&mockDispatcher{})
		b.handleGet(ctx, 100, "pics filter=video")
		if diff := cmp.Diff("No posts found", api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown subreddit", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockSource{fetchErr: reddit.ErrNotFound})
		b.SetDispatcher(&mockDispatcher{})
		b.handleGet(ctx, 100, "nope")
		if diff := cmp.Diff(msgNoSuchSubreddit, api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})

	t.Run("delivery failure", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockSource{posts: posts[:1]})
		b.SetDispatcher(&mockDispatcher{err: errors.New("upload failed")})
		b.handleGet(ctx, 100, "pics")
		if diff := cmp.Diff(msgInternalError, api.lastText()); diff != "" {
			t.Errorf("reply (-want +got):\n%s", diff)
		}
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	cmds := []struct {
		cmd      string
		args     string
		contains string
	}{
		{"start", "", "Subreddit commands"},
		{"help", "", "/unsub"},
		{"sub", "pics", "Subscribed to r/pics"},
		{"listsubs", "", "r/pics"},
		{"unsub", "pics", "Unsubscribed from r/pics"},
		{"unknown_cmd", "", "Unknown command"},
	}

	b, api, _ := newTestBot(t, nil)
	for _, tc := range cmds {
		api.reset()
		b.handleCommand(ctx, makeMsg(1, tc.cmd, tc.args))
		requireContains(t, api.lastText(), tc.contains)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: 1},
			Data:    "nocolon",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"cb1"}, api.callbacks); diff != "" {
			t.Errorf("callback acks (-want +got):\n%s", diff)
		}
	})

	t.Run("unsub callback", func(t *testing.T) {
		b, api, store := newTestBot(t, nil)
		b.handleSubscribe(ctx, 100, "pics")
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb2",
			From:    &tgbotapi.User{ID: 1},
			Data:    "unsub:pics",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, api.lastText(), "Unsubscribed from r/pics")
		subs, _ := store.ListSubscriptions(ctx, 100)
		if diff := cmp.Diff(0, len(subs)); diff != "" {
			t.Errorf("subscription count (-want +got):\n%s", diff)
		}
	})

	t.Run("get callback", func(t *testing.T) {
		b, _, _ := newTestBot(t, &mockSource{posts: []model.Post{{ID: "x", Type: model.PostTypeLink}}})
		d := &mockDispatcher{}
		b.SetDispatcher(d)
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb3",
			From:    &tgbotapi.User{ID: 1},
			Data:    "get:pics",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff([]string{"x"}, d.delivered); diff != "" {
			t.Errorf("delivered (-want +got):\n%s", diff)
		}
	})
}

func TestRun(t *testing.T) {
	t.Run("access control", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.cfg = &config.Config{AllowedUsers: []int64{1}}
		api.updates = make(chan tgbotapi.Update, 4)
		api.updates <- tgbotapi.Update{Message: makeMsg(2, "help", "")}
		api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}, Text: "not a command"}}
		api.updates <- tgbotapi.Update{Message: makeMsg(1, "sub", "pics")}
		close(api.updates)

		err := b.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "closed") {
			t.Fatalf("Run() error = %v, want channel closed", err)
		}
		want := []string{"Access denied.", "Subscribed to r/pics"}
		if diff := cmp.Diff(want, api.allTexts()); diff != "" {
			t.Errorf("replies (-want +got):\n%s", diff)
		}
	})

	t.Run("slow get does not hold up other commands", func(t *testing.T) {
		src := &mockSource{posts: []model.Post{{ID: "v", Type: model.PostTypeVideo}}}
		b, api, _ := newTestBot(t, src)
		d := &mockDispatcher{release: make(chan struct{})}
		b.SetDispatcher(d)
		api.updates = make(chan tgbotapi.Update, 2)
		api.updates <- tgbotapi.Update{Message: makeMsg(1, "get", "pics")}
		api.updates <- tgbotapi.Update{Message: makeMsg(1, "help", "")}

		done := make(chan error, 1)
		go func() { done <- b.Run(context.Background()) }()

		deadline := time.After(5 * time.Second)
		for api.lastText() != helpText {
			select {
			case <-deadline:
				close(d.release)
				t.Fatal("help was not answered while get was in flight")
			case <-time.After(10 * time.Millisecond):
			}
		}

		close(d.release)
		close(api.updates)
		if err := <-done; err == nil || !strings.Contains(err.Error(), "closed") {
			t.Fatalf("Run() error = %v, want channel closed", err)
		}
		if diff := cmp.Diff([]string{"v"}, d.delivered); diff != "" {
			t.Errorf("delivered (-want +got):\n%s", diff)
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		b, _, _ := newTestBot(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	})
}

func TestNewAPI(t *testing.T) {
	t.Run("authorizes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/getMe") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"tg","username":"tgreddit_bot"}}`)
		}))
		defer srv.Close()

		api, err := newAPI("tok", srv.URL+"/bot%s/%s", time.Second)
		if err != nil {
			t.Fatalf("newAPI: %v", err)
		}
		if api.Self.UserName != "tgreddit_bot" {
			t.Errorf("username = %q, want tgreddit_bot", api.Self.UserName)
		}
	})

	t.Run("unresponsive server times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer srv.Close()

		start := time.Now()
		_, err := newAPI("tok", srv.URL+"/bot%s/%s", 100*time.Millisecond)
		if err == nil {
			t.Fatal("newAPI() error = nil, want timeout")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("newAPI took %s, want it bounded by the client timeout", elapsed)
		}
	})
}
