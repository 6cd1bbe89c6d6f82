// ABOUTME: End-to-end tests for the gateway HTTP surface
// ABOUTME: Drives signed LINE webhooks through the real handler with fake LINE clients

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/photoid-gateway/internal/auth"
	"github.com/2389/photoid-gateway/internal/config"
	"github.com/2389/photoid-gateway/internal/storage"
	"github.com/2389/photoid-gateway/internal/store"
)

const (
	testChannelSecret = "gateway-test-secret"
	testJWTSecret     = "gateway-test-jwt-secret-0123456789abcdef"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentReply struct {
	token string
	text  string
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []sentReply
}

func (f *fakeReplier) Reply(_ context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{token: token, text: text})
	return nil
}

func (f *fakeReplier) all() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

type fakeFetcher struct {
	content map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, ok := f.content[ref]
	if !ok {
		return nil, errors.New("content not found")
	}
	return data, nil
}

type harness struct {
	gw       *Gateway
	ledger   *store.MockStore
	replier  *fakeReplier
	imageDir string
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		LINE:    config.LINEConfig{ChannelAccessToken: "token", ChannelSecret: testChannelSecret},
		Metrics: config.MetricsConfig{Path: config.DefaultMetricsPath},
		Dedupe:  config.DedupeConfig{TTL: time.Minute},
	}
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		ledger:   store.NewMockStore(),
		replier:  &fakeReplier{},
		imageDir: t.TempDir(),
	}
	fetcher := &fakeFetcher{content: map[string][]byte{
		"img-1": []byte("\xff\xd8\xff\xe0 first image"),
		"img-2": []byte("\xff\xd8\xff\xe0 second image"),
	}}

	gw, err := New(cfg, testLogger(),
		WithStore(h.ledger),
		WithFetcher(fetcher),
		WithReplier(h.replier),
		WithPersister(storage.NewLocalPersister(h.imageDir, testLogger()), config.BackendLocal),
	)
	require.NoError(t, err)
	t.Cleanup(func() { gw.dedupe.Close() })
	h.gw = gw
	return h
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type testEvent struct {
	id      string
	user    string
	group   string
	token   string
	imageID string
	text    string
}

func (e testEvent) json() string {
	source := fmt.Sprintf(`{"type":"user","userId":%q}`, e.user)
	if e.group != "" {
		source = fmt.Sprintf(`{"type":"group","groupId":%q,"userId":%q}`, e.group, e.user)
	}
	message := fmt.Sprintf(`{"type":"image","id":%q,"quoteToken":"q","contentProvider":{"type":"line"}}`, e.imageID)
	if e.imageID == "" {
		message = fmt.Sprintf(`{"type":"text","id":"t-%s","quoteToken":"q","text":%q}`, e.id, e.text)
	}
	return fmt.Sprintf(`{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":%q,`+
		`"deliveryContext":{"isRedelivery":false},"replyToken":%q,"source":%s,"message":%s}`,
		e.id, e.token, source, message)
}

func webhookBody(events ...testEvent) []byte {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.json()
	}
	return []byte(`{"destination":"Ubot","events":[` + strings.Join(parts, ",") + `]}`)
}

func (h *harness) deliver(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) send(t *testing.T, events ...testEvent) {
	t.Helper()
	body := webhookBody(events...)
	rec := h.deliver(t, body, sign(testChannelSecret, body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func (h *harness) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCallback_ImageThenIdentifier(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"})
	h.send(t, testEvent{id: "e2", user: "U1", token: "rt-2", text: " 00042 "})

	replies := h.replier.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "rt-1", replies[0].token)
	assert.Contains(t, replies[0].text, "5-digit ID")
	assert.Equal(t, "rt-2", replies[1].token)
	assert.Contains(t, replies[1].text, "00042.jpg")

	data, err := os.ReadFile(filepath.Join(h.imageDir, "00042.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0 first image"), data)

	uploads, err := h.ledger.ListUploads(context.Background(), store.UploadFilter{})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "user:U1", uploads[0].ConversationKey)
	assert.Equal(t, "00042", uploads[0].Identifier)
	assert.Equal(t, "img-1", uploads[0].ImageRef)
	assert.Equal(t, config.BackendLocal, uploads[0].Backend)

	assert.Equal(t, 0, h.gw.pending.Len())
}

func TestCallback_BatchHandledInOrder(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t,
		testEvent{id: "e1", user: "U1", group: "G1", token: "rt-1", imageID: "img-1"},
		testEvent{id: "e2", user: "U1", group: "G1", token: "rt-2", text: "hello"},
		testEvent{id: "e3", user: "U1", group: "G1", token: "rt-3", text: "12345"},
	)

	replies := h.replier.all()
	require.Len(t, replies, 2, "the non-matching text gets no reply")
	assert.Contains(t, replies[1].text, "12345.jpg")
	assert.FileExists(t, filepath.Join(h.imageDir, "12345.jpg"))
}

func TestCallback_Expiry(t *testing.T) {
	h := newHarness(t, nil)

	h.send(t, testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"})
	h.send(t,
		testEvent{id: "e2", user: "U1", token: "rt-2", text: "one"},
		testEvent{id: "e3", user: "U1", token: "rt-3", text: "two"},
		testEvent{id: "e4", user: "U1", token: "rt-4", text: "three"},
	)

	replies := h.replier.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "rt-4", replies[1].token)
	assert.Contains(t, replies[1].text, "discarded")

	// Idle again: a valid id now does nothing.
	h.send(t, testEvent{id: "e5", user: "U1", token: "rt-5", text: "00001"})
	assert.Len(t, h.replier.all(), 2)
	assert.NoFileExists(t, filepath.Join(h.imageDir, "00001.jpg"))
}

func TestCallback_RedeliveryIsDropped(t *testing.T) {
	h := newHarness(t, nil)

	image := testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"}
	text := testEvent{id: "e2", user: "U1", token: "rt-2", text: "nope"}

	h.send(t, image)
	h.send(t, text)
	h.send(t, text)
	h.send(t, text)

	// Only one decrement happened, so the record is still pending.
	p, ok := h.gw.pending.Get("user:U1")
	require.True(t, ok)
	assert.Equal(t, 2, p.MessagesRemaining)
	assert.Len(t, h.replier.all(), 1)
}

func TestCallback_InvalidSignature(t *testing.T) {
	h := newHarness(t, nil)

	body := webhookBody(testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"})
	rec := h.deliver(t, body, sign("wrong-secret", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.replier.all())
	assert.Equal(t, 0, h.gw.pending.Len())
}

func TestCallback_MalformedBody(t *testing.T) {
	h := newHarness(t, nil)

	body := []byte(`{"destination":"Ubot","events":[{`)
	rec := h.deliver(t, body, sign(testChannelSecret, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.get(t, "/callback", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = h.get(t, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	h.ledger.PingErr = errors.New("database is locked")
	rec = h.get(t, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.send(t, testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"})

	rec := h.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `photoid_events_total{kind="image",outcome="prompted"} 1`)
	assert.Contains(t, body, "photoid_pending_images 1")
	assert.Contains(t, body, `photoid_webhook_requests_total{status="200"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	disabled := false
	h := newHarness(t, func(c *config.Config) { c.Metrics.Enabled = &disabled })

	h.send(t, testEvent{id: "e1", user: "U1", token: "rt-1", imageID: "img-1"})

	rec := h.get(t, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedUpload(t *testing.T, h *harness, id, identifier string, at time.Time) {
	t.Helper()
	require.NoError(t, h.ledger.SaveUpload(context.Background(), &store.Upload{
		ID:              id,
		ConversationKey: "user:U1",
		Identifier:      identifier,
		ImageRef:        "img",
		Filename:        identifier + ".jpg",
		Location:        "images/" + identifier + ".jpg",
		Backend:         "local",
		SizeBytes:       10,
		CreatedAt:       at,
	}))
}

func TestUploadsAPI_Open(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	seedUpload(t, h, "u1", "00001", now.Add(-time.Minute))
	seedUpload(t, h, "u2", "00002", now)

	rec := h.get(t, "/api/uploads?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list ListUploadsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Uploads, 1)
	assert.Equal(t, "u2", list.Uploads[0].ID)

	rec = h.get(t, "/api/uploads?identifier=00001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = ListUploadsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Uploads, 1)
	assert.Equal(t, "u1", list.Uploads[0].ID)
	assert.Equal(t, 1, list.Total, "total counts only matching uploads")

	rec = h.get(t, "/api/uploads?conversation=group:G9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = ListUploadsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Empty(t, list.Uploads)
	assert.Equal(t, 0, list.Total)

	rec = h.get(t, "/api/uploads/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&one))
	assert.Equal(t, "00001.jpg", one.Filename)

	rec = h.get(t, "/api/uploads/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadsAPI_BadQuery(t *testing.T) {
	h := newHarness(t, nil)

	for _, path := range []string{
		"/api/uploads?limit=zero",
		"/api/uploads?limit=-1",
		"/api/uploads?identifier=123",
	} {
		rec := h.get(t, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestUploadsAPI_RequiresToken(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Auth.JWTSecret = testJWTSecret })
	seedUpload(t, h, "u1", "00001", time.Now())

	rec := h.get(t, "/api/uploads", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	v, err := auth.NewJWTVerifier([]byte(testJWTSecret))
	require.NoError(t, err)
	token, err := v.Generate("ops", time.Hour)
	require.NoError(t, err)

	rec = h.get(t, "/api/uploads", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.get(t, "/api/uploads/u1", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The webhook and health endpoints stay open.
	assert.Equal(t, http.StatusOK, h.get(t, "/health", "").Code)
}

func TestUploadsAPI_RateLimited(t *testing.T) {
	h := newHarness(t, nil)

	var limited bool
	for i := 0; i < apiBurst+5; i++ {
		rec := h.get(t, "/api/uploads", "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited, "burst should be exhausted")
}

func TestNew_InvalidJWTSecret(t *testing.T) {
	// Metrics.Path is left empty: New must not depend on config defaults.
	_, err := New(&config.Config{
		LINE:   config.LINEConfig{ChannelAccessToken: "t", ChannelSecret: "s"},
		Auth:   config.AuthConfig{JWTSecret: "short"},
		Dedupe: config.DedupeConfig{TTL: time.Minute},
	}, testLogger(),
		WithStore(store.NewMockStore()),
		WithFetcher(&fakeFetcher{}),
		WithReplier(&fakeReplier{}),
		WithPersister(storage.NewLocalPersister(t.TempDir(), testLogger()), config.BackendLocal),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrWeakSecret)
}

func TestNew_EmptyMetricsPathUsesDefault(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Metrics.Path = "" })

	rec := h.get(t, config.DefaultMetricsPath, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "photoid_pending_images 0")
}

func TestNew_FailureClosesOpenedLedger(t *testing.T) {
	var opened store.Store
	orig := openStore
	openStore = func(cfg *config.Config) (store.Store, error) {
		s, err := orig(cfg)
		opened = s
		return s, err
	}
	t.Cleanup(func() { openStore = orig })

	_, err := New(&config.Config{
		LINE:     config.LINEConfig{ChannelAccessToken: "t", ChannelSecret: "s"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "photoid.db")},
		Auth:     config.AuthConfig{JWTSecret: "short"},
		Dedupe:   config.DedupeConfig{TTL: time.Minute},
	}, testLogger(),
		WithFetcher(&fakeFetcher{}),
		WithReplier(&fakeReplier{}),
		WithPersister(storage.NewLocalPersister(t.TempDir(), testLogger()), config.BackendLocal),
	)
	require.ErrorIs(t, err, auth.ErrWeakSecret)
	require.NotNil(t, opened, "ledger should have been opened from database.path")
	assert.Error(t, opened.Ping(context.Background()), "ledger should be closed after New fails")
}

func TestNew_FailureLeavesInjectedLedgerOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photoid.db")
	ledger, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	_, err = New(&config.Config{
		LINE:   config.LINEConfig{ChannelAccessToken: "t", ChannelSecret: "s"},
		Auth:   config.AuthConfig{JWTSecret: "short"},
		Dedupe: config.DedupeConfig{TTL: time.Minute},
	}, testLogger(),
		WithStore(ledger),
		WithFetcher(&fakeFetcher{}),
		WithReplier(&fakeReplier{}),
		WithPersister(storage.NewLocalPersister(t.TempDir(), testLogger()), config.BackendLocal),
	)
	require.Error(t, err)
	assert.NoError(t, ledger.Ping(context.Background()))
}

func TestShutdownWithoutRun(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.gw.Shutdown(ctx))
}
