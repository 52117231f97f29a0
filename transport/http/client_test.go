package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/layer-3/folio/adapters/store"
	"github.com/layer-3/folio/core"
	"github.com/layer-3/folio/session"
	transporthttp "github.com/layer-3/folio/transport/http"
)

// testBackend accepts one access token at a time and rotates it on refresh
type testBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	validToken  string
	refreshes   int
	refreshFail bool
	calls       map[string]int
	auth        map[string][]string

	// refreshGate, when set, holds refresh responses until closed
	refreshGate    chan struct{}
	refreshEntered chan struct{}
	enteredOnce    sync.Once

	// barrier, when set, holds first-attempt data requests until all arrive
	barrier *sync.WaitGroup
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		calls:          make(map[string]int),
		auth:           make(map[string][]string),
		refreshEntered: make(chan struct{}),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *testBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	auth := r.Header.Get("Authorization")
	b.auth[r.URL.Path] = append(b.auth[r.URL.Path], auth)
	valid := b.validToken
	barrier := b.barrier
	b.mu.Unlock()

	switch {
	case r.URL.Path == "/auth/refresh":
		b.handleRefresh(w, r)
	case r.URL.Path == "/auth/login":
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case r.URL.Path == "/always401":
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "nope"})
	case r.URL.Path == "/bad":
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "insufficient balance"})
	case r.URL.Path == "/boom":
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
	case r.URL.Path == "/slow":
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	case auth != "Bearer "+valid || valid == "":
		if barrier != nil && auth != "Bearer a2" {
			barrier.Done()
			barrier.Wait()
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"path": r.URL.Path, "query": r.URL.RawQuery}})
	}
}

func (b *testBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.enteredOnce.Do(func() { close(b.refreshEntered) })
	if b.refreshGate != nil {
		<-b.refreshGate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++

	if b.refreshFail || body.RefreshToken != "r1" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token revoked"})
		return
	}
	b.validToken = "a2"
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"accessToken": "a2", "refreshToken": "r2"}})
}

func (b *testBackend) stats(path string) (calls int, auth []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path], append([]string(nil), b.auth[path]...)
}

func (b *testBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// recordingTransport records the order requests enter the transport
type recordingTransport struct {
	base http.RoundTripper

	mu      sync.Mutex
	entries []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.entries = append(rt.entries, req.URL.Path+" "+req.Header.Get("Authorization"))
	rt.mu.Unlock()
	return rt.base.RoundTrip(req)
}

func (rt *recordingTransport) withAuth(auth string) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var paths []string
	for _, e := range rt.entries {
		if path, ok := strings.CutSuffix(e, " "+auth); ok {
			paths = append(paths, path)
		}
	}
	return paths
}

type pathPayload struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

func newSessions(t *testing.T, sess *core.Session) *session.Store {
	t.Helper()
	sessions := session.NewStore(store.NewMemoryStore())
	if sess != nil {
		require.NoError(t, sessions.Set(context.Background(), *sess))
	}
	return sessions
}

func serverSession() *core.Session {
	return &core.Session{
		AccessToken:  "a1",
		RefreshToken: "r1",
		Origin:       core.OriginServer,
		Identity:     &core.Identity{ID: "u1"},
	}
}

func newClient(t *testing.T, baseURL string, sessions transporthttp.SessionStore, mutate ...func(*transporthttp.Config)) *transporthttp.Client {
	t.Helper()
	cfg := transporthttp.Config{BaseURL: baseURL}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := transporthttp.New(cfg, sessions)
	require.NoError(t, err)
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := transporthttp.New(transporthttp.Config{}, newSessions(t, nil))
	assert.Error(t, err)

	_, err = transporthttp.New(transporthttp.Config{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err)
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"envelope", `{"data":{"id":"u1"},"success":true}`, `{"id":"u1"}`},
		{"envelope with array", `{"data":[1,2]}`, `[1,2]`},
		{"envelope with null", `{"data":null}`, `null`},
		{"object without data", `{"id":"u1"}`, `{"id":"u1"}`},
		{"nested data is not unwrapped twice", `{"data":{"data":1}}`, `{"data":1}`},
		{"array", ` [1,2] `, `[1,2]`},
		{"string", `"ok"`, `"ok"`},
		{"empty", ``, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transporthttp.Unwrap([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := transporthttp.Unwrap([]byte(`{broken`))
	assert.Error(t, err)
}

func TestCacheKey_NormalizesQuery(t *testing.T) {
	a := transporthttp.CacheKey("/balances", url.Values{"chain": {"evm", "stellar"}, "addr": {"G1"}})
	b := transporthttp.CacheKey("/balances", url.Values{"addr": {"G1"}, "chain": {"stellar", "evm"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "/balances", transporthttp.CacheKey("/balances", nil))
	assert.NotEqual(t, a, transporthttp.CacheKey("/balances", url.Values{"addr": {"G2"}}))
}

func TestClient_Get(t *testing.T) {
	backend := newTestBackend(t)
	backend.validToken = "a1"
	client := newClient(t, backend.server.URL, newSessions(t, serverSession()))

	got, err := transporthttp.GetAs[pathPayload](context.Background(), client, "/portfolio",
		transporthttp.WithQuery(url.Values{"chain": {"evm"}}))
	require.NoError(t, err)
	assert.Equal(t, pathPayload{Path: "/portfolio", Query: "chain=evm"}, got)

	_, auth := backend.stats("/portfolio")
	assert.Equal(t, []string{"Bearer a1"}, auth)
}

func TestClient_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		session *core.Session
		want    string
	}{
		{"server session", serverSession(), "Bearer a1"},
		{"fallback session", &core.Session{AccessToken: "local-1", Origin: core.OriginLocalFallback}, ""},
		{"no session", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
			}))
			defer server.Close()

			client := newClient(t, server.URL, newSessions(t, tt.session))
			require.NoError(t, client.Get(context.Background(), "/portfolio", nil))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_LogoutDropsAuthorization(t *testing.T) {
	backend := newTestBackend(t)
	backend.validToken = "a1"
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)
	ctx := context.Background()

	require.NoError(t, client.Get(ctx, "/portfolio", nil))
	require.NoError(t, sessions.Clear(ctx, session.ReasonLogout))

	err := client.Get(ctx, "/portfolio", nil)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, auth := backend.stats("/portfolio")
	assert.Equal(t, []string{"Bearer a1", ""}, auth)
	assert.Equal(t, 0, backend.refreshCount())
}

func TestClient_ErrorClassification(t *testing.T) {
	backend := newTestBackend(t)
	client := newClient(t, backend.server.URL, newSessions(t, nil), func(cfg *transporthttp.Config) {
		cfg.Timeout = 100 * time.Millisecond
	})
	ctx := context.Background()

	err := client.Post(ctx, "/bad", map[string]string{"amount": "1"}, nil)
	assert.ErrorIs(t, err, core.ErrValidationRejected)
	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	assert.Equal(t, "insufficient balance", reqErr.Message)

	err = client.Get(ctx, "/boom", nil)
	assert.ErrorIs(t, err, core.ErrServer)
	assert.NotErrorIs(t, err, core.ErrValidationRejected)

	err = client.Get(ctx, "/slow", nil)
	assert.ErrorIs(t, err, core.ErrNetwork)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	offline := newClient(t, closed.URL, newSessions(t, nil))
	err = offline.Get(ctx, "/portfolio", nil)
	assert.ErrorIs(t, err, core.ErrNetwork)
}

func TestClient_Cache(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]int{"n": n}})
	}))
	defer server.Close()

	client := newClient(t, server.URL, newSessions(t, nil))
	ctx := context.Background()
	ttl := 150 * time.Millisecond
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}

	var first, second struct{ N int }
	require.NoError(t, client.Get(ctx, "/yields", &first, transporthttp.WithCache(ttl)))
	require.NoError(t, client.Get(ctx, "/yields", &second, transporthttp.WithCache(ttl)))
	assert.Equal(t, 1, count())
	assert.Equal(t, first, second)

	// a different query is a different entry
	require.NoError(t, client.Get(ctx, "/yields", nil, transporthttp.WithCache(ttl), transporthttp.WithQuery(url.Values{"chain": {"evm"}})))
	assert.Equal(t, 2, count())

	// non-cacheable reads always hit the network
	require.NoError(t, client.Get(ctx, "/yields", nil))
	assert.Equal(t, 3, count())

	time.Sleep(ttl + 100*time.Millisecond)

	var third struct{ N int }
	require.NoError(t, client.Get(ctx, "/yields", &third, transporthttp.WithCache(ttl)))
	assert.Equal(t, 4, count())
	assert.Equal(t, 4, third.N)

	client.ResetCache()
	require.NoError(t, client.Get(ctx, "/yields", nil, transporthttp.WithCache(ttl)))
	assert.Equal(t, 5, count())
}

func TestClient_FailedFetchNotCached(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := newClient(t, server.URL, newSessions(t, nil))
	ctx := context.Background()

	err := client.Get(ctx, "/health", nil, transporthttp.WithCache(time.Minute))
	assert.ErrorIs(t, err, core.ErrServer)

	var got map[string]string
	require.NoError(t, client.Get(ctx, "/health", &got, transporthttp.WithCache(time.Minute)))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, 2, calls)
}

func TestClient_RefreshAndReplay(t *testing.T) {
	backend := newTestBackend(t)
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)

	got, err := transporthttp.GetAs[pathPayload](context.Background(), client, "/auth/me")
	require.NoError(t, err)
	assert.Equal(t, "/auth/me", got.Path)

	assert.Equal(t, 1, backend.refreshCount())
	calls, auth := backend.stats("/auth/me")
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auth)

	_, refreshAuth := backend.stats("/auth/refresh")
	assert.Equal(t, []string{""}, refreshAuth)

	current, ok := sessions.Current()
	require.True(t, ok)
	assert.Equal(t, "a2", current.AccessToken)
	assert.Equal(t, "r2", current.RefreshToken)
	assert.Equal(t, "u1", current.Identity.ID)
}

func TestClient_AuthEndpointNeverRefreshes(t *testing.T) {
	backend := newTestBackend(t)
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)

	err := client.Post(context.Background(), "/auth/login", map[string]string{"email": "a@b.c", "password": "wrong"}, nil)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.NotErrorIs(t, err, core.ErrRefreshExhausted)

	var reqErr *core.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "invalid credentials", reqErr.Message)

	assert.Equal(t, 0, backend.refreshCount())
	_, ok := sessions.Current()
	assert.True(t, ok)
}

func TestClient_ReplayedRequestNotRetriedTwice(t *testing.T) {
	backend := newTestBackend(t)
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)

	err := client.Get(context.Background(), "/always401", nil)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.NotErrorIs(t, err, core.ErrRefreshExhausted)

	calls, auth := backend.stats("/always401")
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auth)
	assert.Equal(t, 1, backend.refreshCount())
}

func TestClient_RefreshFailureClearsSession(t *testing.T) {
	backend := newTestBackend(t)
	backend.refreshFail = true
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)

	err := client.Get(context.Background(), "/portfolio", nil)
	assert.ErrorIs(t, err, core.ErrRefreshExhausted)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, ok := sessions.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, backend.refreshCount())

	calls, _ := backend.stats("/portfolio")
	assert.Equal(t, 1, calls)
}

func TestClient_ConcurrentUnauthorizedRefreshOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const n = 8
	backend := newTestBackend(t)
	backend.barrier = &sync.WaitGroup{}
	backend.barrier.Add(n)

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()
	defer backend.server.Close()

	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions, func(cfg *transporthttp.Config) {
		cfg.HTTPClient = &http.Client{Transport: transport}
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), fmt.Sprintf("/items/%d", i), nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, 1, backend.refreshCount())

	for i := 0; i < n; i++ {
		calls, auth := backend.stats(fmt.Sprintf("/items/%d", i))
		assert.Equal(t, 2, calls)
		assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auth)
	}
}

// startQueued launches n requests one after another so that each one is
// queued behind the refresh before the next starts
func startQueued(t *testing.T, client *transporthttp.Client, backend *testBackend, ctxs []context.Context) []chan error {
	t.Helper()
	results := make([]chan error, len(ctxs))
	for i, ctx := range ctxs {
		results[i] = make(chan error, 1)
		go func(i int, ctx context.Context) {
			results[i] <- client.Get(ctx, fmt.Sprintf("/items/%d", i), nil)
		}(i, ctx)

		if i == 0 {
			select {
			case <-backend.refreshEntered:
			case <-time.After(5 * time.Second):
				t.Fatal("refresh never started")
			}
			continue
		}
		want := i
		require.Eventually(t, func() bool { return client.QueuedRequests() == want }, 5*time.Second, time.Millisecond)
	}
	return results
}

func TestClient_ReplaysInArrivalOrder(t *testing.T) {
	const n = 6
	backend := newTestBackend(t)
	backend.refreshGate = make(chan struct{})

	recorder := &recordingTransport{base: http.DefaultTransport}
	client := newClient(t, backend.server.URL, newSessions(t, serverSession()), func(cfg *transporthttp.Config) {
		cfg.HTTPClient = &http.Client{Transport: recorder}
	})

	ctxs := make([]context.Context, n)
	for i := range ctxs {
		ctxs[i] = context.Background()
	}
	results := startQueued(t, client, backend, ctxs)
	close(backend.refreshGate)

	for i, ch := range results {
		assert.NoError(t, <-ch, "request %d", i)
	}

	var want []string
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("/items/%d", i))
	}
	assert.Equal(t, want, recorder.withAuth("Bearer a2"))
	assert.Equal(t, 1, backend.refreshCount())
}

func TestClient_QueuedRequestsRejectedOnRefreshFailure(t *testing.T) {
	const n = 4
	backend := newTestBackend(t)
	backend.refreshGate = make(chan struct{})
	backend.refreshFail = true
	sessions := newSessions(t, serverSession())
	client := newClient(t, backend.server.URL, sessions)

	ctxs := make([]context.Context, n)
	for i := range ctxs {
		ctxs[i] = context.Background()
	}
	results := startQueued(t, client, backend, ctxs)
	close(backend.refreshGate)

	for i, ch := range results {
		err := <-ch
		assert.ErrorIs(t, err, core.ErrRefreshExhausted, "request %d", i)
		assert.ErrorIs(t, err, core.ErrUnauthorized, "request %d", i)
	}
	assert.Equal(t, 1, backend.refreshCount())

	_, ok := sessions.Current()
	assert.False(t, ok)
	for i := 0; i < n; i++ {
		calls, _ := backend.stats(fmt.Sprintf("/items/%d", i))
		assert.Equal(t, 1, calls)
	}
}

func TestClient_CanceledWaiterDoesNotStallQueue(t *testing.T) {
	backend := newTestBackend(t)
	backend.refreshGate = make(chan struct{})

	recorder := &recordingTransport{base: http.DefaultTransport}
	client := newClient(t, backend.server.URL, newSessions(t, serverSession()), func(cfg *transporthttp.Config) {
		cfg.HTTPClient = &http.Client{Transport: recorder}
	})

	canceled, cancel := context.WithCancel(context.Background())
	results := startQueued(t, client, backend, []context.Context{context.Background(), canceled, context.Background()})

	cancel()
	assert.ErrorIs(t, <-results[1], context.Canceled)

	close(backend.refreshGate)
	assert.NoError(t, <-results[0])
	assert.NoError(t, <-results[2])

	assert.Equal(t, []string{"/items/0", "/items/2"}, recorder.withAuth("Bearer a2"))
}

// pausingSessions holds UpdateTokens after the new tokens are stored, so the
// refresh stays in flight while the store already serves the new token
type pausingSessions struct {
	*session.Store
	updated chan struct{}
	resume  chan struct{}
}

func (s *pausingSessions) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	err := s.Store.UpdateTokens(ctx, accessToken, refreshToken)
	close(s.updated)
	<-s.resume
	return err
}

// holdingTransport keeps requests sent with a1 on path until release closes
type holdingTransport struct {
	base    http.RoundTripper
	path    string
	entered chan struct{}
	release chan struct{}
}

func (ht *holdingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == ht.path && req.Header.Get("Authorization") == "Bearer a1" {
		close(ht.entered)
		<-ht.release
	}
	return ht.base.RoundTrip(req)
}

func newHeldClient(t *testing.T, backend *testBackend, sessions transporthttp.SessionStore) (*transporthttp.Client, *holdingTransport) {
	t.Helper()
	held := &holdingTransport{
		base:    http.DefaultTransport,
		path:    "/late",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	client := newClient(t, backend.server.URL, sessions, func(cfg *transporthttp.Config) {
		cfg.HTTPClient = &http.Client{Transport: held}
	})
	return client, held
}

func TestClient_StaleTokenDuringRefreshJoinsCycle(t *testing.T) {
	backend := newTestBackend(t)
	sessions := &pausingSessions{
		Store:   newSessions(t, serverSession()),
		updated: make(chan struct{}),
		resume:  make(chan struct{}),
	}
	client, held := newHeldClient(t, backend, sessions)
	ctx := context.Background()

	late := make(chan error, 1)
	go func() { late <- client.Get(ctx, "/late", nil) }()
	<-held.entered

	leader := make(chan error, 1)
	go func() { leader <- client.Get(ctx, "/items/0", nil) }()
	<-sessions.updated

	// the new token is stored but the refresh has not finished yet
	assert.Equal(t, "a2", sessions.BearerToken())
	close(held.release)
	require.Eventually(t, func() bool { return client.QueuedRequests() == 1 }, 5*time.Second, time.Millisecond)

	close(sessions.resume)
	require.NoError(t, <-leader)
	require.NoError(t, <-late)

	assert.Equal(t, 1, backend.refreshCount())
	calls, auth := backend.stats("/late")
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auth)
}

func TestClient_StaleTokenAfterRefreshReplaysWithoutRefresh(t *testing.T) {
	backend := newTestBackend(t)
	client, held := newHeldClient(t, backend, newSessions(t, serverSession()))
	ctx := context.Background()

	late := make(chan error, 1)
	go func() { late <- client.Get(ctx, "/late", nil) }()
	<-held.entered

	require.NoError(t, client.Get(ctx, "/items/0", nil))
	close(held.release)
	require.NoError(t, <-late)

	assert.Equal(t, 1, backend.refreshCount())
	_, auth := backend.stats("/late")
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auth)
}
