package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-feeds/internal/model"
	"go-feeds/internal/scheduler"
	"go-feeds/internal/service"
	"go-feeds/internal/store"
)

type fakeReimporter struct {
	ids []string
	err error
}

func (f *fakeReimporter) RequestReimport(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakePush struct {
	subscriptionID string
	body           string
}

func (f *fakePush) Receive(_ context.Context, subscriptionID string, body io.Reader) (int, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	f.subscriptionID = subscriptionID
	f.body = string(b)
	return 2, nil
}

type fakeScheduler struct {
	runs int
	next time.Time
}

func (f *fakeScheduler) RunNow(context.Context) (scheduler.RunResult, error) {
	f.runs++
	return scheduler.RunResult{TotalCount: 3, SuccessCount: 2, FailureCount: 1}, nil
}

func (f *fakeScheduler) GetNextRunTime() time.Time { return f.next }

type testEnv struct {
	router     *gin.Engine
	items      *store.ItemStore
	subs       *store.SubscriptionStore
	blobs      *store.BlobStore
	reimporter *fakeReimporter
	push       *fakePush
	scheduler  *fakeScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	items := store.NewItemStore(db)
	subs := store.NewSubscriptionStore(db)
	blobs := store.NewBlobStore(db)
	env := &testEnv{
		items:      items,
		subs:       subs,
		blobs:      blobs,
		reimporter: &fakeReimporter{},
		push:       &fakePush{},
		scheduler:  &fakeScheduler{next: time.Date(2030, 1, 1, 0, 5, 0, 0, time.UTC)},
	}

	h := NewHandler(Deps{
		Items:          service.NewItemService(items, subs),
		Subscriptions:  service.NewSubscriptionService(subs, logger),
		Feeds:          service.NewFeedService(items, logger),
		Accounts:       service.NewAccountService(items, blobs, subs, logger),
		Settings:       service.NewSettingsService(db),
		LLM:            service.NewLLMService(db, nil),
		Status:         service.NewStatusService(items, subs, store.NewEventLog(db)),
		Blobs:          blobs,
		Reimporter:     env.reimporter,
		Push:           env.push,
		Scheduler:      env.scheduler,
		HubVerifyToken: "secret",
		Logger:         logger,
	})
	env.router = gin.New()
	h.RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) subscribe(t *testing.T, sub *model.UserFeedSubscription) {
	t.Helper()
	sub.IsActive = true
	require.NoError(t, e.subs.Create(context.Background(), sub))
}

func TestVerifyPush(t *testing.T) {
	env := newTestEnv(t)
	env.subscribe(t, &model.UserFeedSubscription{ID: "sub-1", AccountID: "acct-1", FeedSourceType: model.SourceRSS, URL: "https://example.com/feed"})

	w := env.do(http.MethodGet, "/webhooks/feeds/sub-1?hub.mode=subscribe&hub.challenge=abc123&hub.verify_token=secret", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())

	w = env.do(http.MethodGet, "/webhooks/feeds/sub-1?hub.mode=subscribe&hub.challenge=abc123&hub.verify_token=wrong", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/webhooks/feeds/missing?hub.mode=subscribe&hub.challenge=abc123&hub.verify_token=secret", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/webhooks/feeds/sub-1?hub.mode=publish&hub.challenge=abc123", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceivePush(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/webhooks/feeds/sub-9", "<rss></rss>")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"new_items":2}`, w.Body.String())
	assert.Equal(t, "sub-9", env.push.subscriptionID)
	assert.Equal(t, "<rss></rss>", env.push.body)
}

func TestSaveAndGetItem(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/items", `{"account_id":"acct-1","url":"https://example.com/post","content_kind":"website"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var item model.FeedItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, model.KindWebsite, item.ContentKind)
	assert.Equal(t, model.SourceApp, item.FeedSource.Type)
	assert.Equal(t, model.ImportNew, item.ImportState.Status)

	w = env.do(http.MethodGet, "/api/items/"+item.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/items/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/items", `{"account_id":"acct-1","url":"https://example.com/x","content_kind":"podcast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListItems_FiltersBySubscriptionSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.subscribe(t, &model.UserFeedSubscription{ID: "muted", AccountID: "acct-1", FeedSourceType: model.SourceRSS, URL: "https://a.example/feed", DeliverySchedule: model.Never()})
	env.subscribe(t, &model.UserFeedSubscription{ID: "live", AccountID: "acct-1", FeedSourceType: model.SourceRSS, URL: "https://b.example/feed", DeliverySchedule: model.Immediate()})

	for i, src := range []model.FeedSource{
		{Type: model.SourceRSS, SubscriptionID: "muted"},
		{Type: model.SourceRSS, SubscriptionID: "live"},
		{Type: model.SourceApp},
	} {
		require.NoError(t, env.items.Create(ctx, &model.FeedItem{
			ID:          fmt.Sprintf("item-%d", i),
			AccountID:   "acct-1",
			FeedSource:  src,
			ContentKind: model.KindArticle,
			URL:         fmt.Sprintf("https://example.com/%d", i),
			ImportState: model.NewImportState(time.Now()),
		}))
	}

	w := env.do(http.MethodGet, "/api/items?account=acct-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data  []model.FeedItem `json:"data"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	ids := []string{resp.Data[0].ID, resp.Data[1].ID}
	assert.ElementsMatch(t, []string{"item-1", "item-2"}, ids)

	w = env.do(http.MethodGet, "/api/items", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetItemFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := &model.FeedItem{ID: "f1", AccountID: "acct-1", FeedSource: model.FeedSource{Type: model.SourceApp}, ContentKind: model.KindArticle, ImportState: model.NewImportState(time.Now())}
	require.NoError(t, env.items.Create(ctx, item))
	require.NoError(t, env.blobs.WriteFile(ctx, store.BlobPath("acct-1", "f1", store.FileMainContentMD), []byte("# Hello"), "text/markdown"))

	w := env.do(http.MethodGet, "/api/items/f1/files/mainContent.md", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Hello", w.Body.String())
	assert.Equal(t, "text/markdown", w.Header().Get("Content-Type"))

	w = env.do(http.MethodGet, "/api/items/f1/files/raw.html", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/items/f1/files/passwd", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReimportItem(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/items/abc/reimport", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"abc"}, env.reimporter.ids)

	env.reimporter.err = fmt.Errorf("feed item abc is processing: %w", store.ErrImportInProgress)
	w = env.do(http.MethodPost, "/api/items/abc/reimport", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	env.reimporter.err = fmt.Errorf("get feed item abc: %w", store.ErrNotFound)
	w = env.do(http.MethodPost, "/api/items/abc/reimport", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/subscriptions", `{"account_id":"acct-1","feed_source_type":"interval","title":"Ticker","interval_seconds":3600}`)
	require.Equal(t, http.StatusOK, w.Code)
	var sub model.UserFeedSubscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.True(t, sub.IsActive)

	w = env.do(http.MethodPut, "/api/subscriptions/"+sub.ID+"/schedule", `{"kind":"every_n_hours","hours":4}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPut, "/api/subscriptions/"+sub.ID+"/schedule", `{"kind":"every_n_hours","hours":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/subscriptions/"+sub.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.NotNil(t, got.UnsubscribedTime)
	require.NotNil(t, got.DeliverySchedule)
	assert.Equal(t, 4, got.DeliverySchedule.Hours)

	w = env.do(http.MethodGet, "/api/subscriptions?account=acct-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/subscriptions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/subscriptions", `{"account_id":"acct-1","feed_source_type":"rss"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunScheduler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/scheduler/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_count":3,"success_count":2,"failure_count":1}`, w.Body.String())
	assert.Equal(t, 1, env.scheduler.runs)
}

func TestConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/config", `{"llm_model":"gpt-4.1-mini","llm_api_key":"sk-abcdef123456"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "gpt-4.1-mini", settings[model.ConfigLLMModel])
	assert.Equal(t, "****3456", settings[model.ConfigLLMApiKey])

	// 回传掩码不会覆盖真实密钥
	w = env.do(http.MethodPost, "/api/config", `{"llm_api_key":"****3456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/config", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settings))
	assert.Equal(t, "****3456", settings[model.ConfigLLMApiKey])
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.items.Create(ctx, &model.FeedItem{ID: "s1", AccountID: "acct-1", FeedSource: model.FeedSource{Type: model.SourceApp}, ContentKind: model.KindArticle, ImportState: model.NewImportState(time.Now())}))
	env.subscribe(t, &model.UserFeedSubscription{ID: "sub-1", AccountID: "acct-1", FeedSourceType: model.SourceRSS, URL: "https://example.com/feed"})

	w := env.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status service.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.EqualValues(t, 1, status.TotalItems)
	assert.EqualValues(t, 1, status.NewItems)
	assert.EqualValues(t, 1, status.ActiveSubscriptions)
	assert.True(t, status.NextIntervalRun.Equal(env.scheduler.next))
}

func TestWipeoutAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.items.Create(ctx, &model.FeedItem{ID: "w1", AccountID: "acct-9", FeedSource: model.FeedSource{Type: model.SourceApp}, ContentKind: model.KindArticle, ImportState: model.NewImportState(time.Now())}))
	require.NoError(t, env.blobs.WriteFile(ctx, store.BlobPath("acct-9", "w1", store.FileRawHTML), []byte("<p>x</p>"), "text/html"))

	w := env.do(http.MethodDelete, "/api/accounts/acct-9", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.items.GetByID(ctx, "w1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, _, err = env.blobs.ReadFile(ctx, store.BlobPath("acct-9", "w1", store.FileRawHTML))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
