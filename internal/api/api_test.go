package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/coord/internal/app/commitreveal"
	"github.com/tutu-network/coord/internal/app/dhtfallback"
	"github.com/tutu-network/coord/internal/domain"
	"github.com/tutu-network/coord/internal/health"
	"github.com/tutu-network/coord/internal/infra/memstore"
	"github.com/tutu-network/coord/internal/security"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *memstore.Store
	reg     *memstore.Registry
	dht     *dhtfallback.Manager
}

func newTestEnv(t *testing.T, revealDelay time.Duration) *testEnv {
	t.Helper()
	store := memstore.NewStore()
	reg := memstore.NewRegistry(0)

	crCfg := commitreveal.DefaultConfig()
	crCfg.RevealDelay = revealDelay
	commits := commitreveal.NewManager(crCfg, store)

	dht, err := dhtfallback.NewManager(dhtfallback.DefaultConfig(), reg)
	require.NoError(t, err)

	srv := NewServer(commits, dht, store, nil)
	srv.EnableMetrics()
	return &testEnv{srv: srv, handler: srv.Handler(), store: store, reg: reg, dht: dht}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// ─── Health & Meta ──────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newTestEnv(t, 0)
	w := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestAPIHealth_WithChecker(t *testing.T) {
	e := newTestEnv(t, 0)
	c := health.NewChecker(health.Options{Store: e.store})
	c.RunOnce(context.Background())
	e.srv.SetChecker(c)

	w := e.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Healthy bool            `json:"healthy"`
		Checks  []health.Status `json:"checks"`
	}](t, w)
	assert.True(t, body.Healthy)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "content_store", body.Checks[0].Name)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, 0)
	e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("x")})

	w := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tutu_coord_commitments_created_total")
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/api/commitments", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// ─── Commit-Reveal ──────────────────────────────────────────────────────────

func TestCommitRevealFlow(t *testing.T) {
	e := newTestEnv(t, 0)
	payload := []byte(`{"move":"e4"}`)

	w := e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: payload, DataType: domain.DataGameState})
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode[domain.Commitment](t, w)
	assert.Equal(t, security.ComputeDataHash(payload), c.DataHash)
	assert.NotEmpty(t, c.StorageID)

	w = e.do(t, http.MethodGet, "/api/commitments/pending", nil)
	pending := decode[struct {
		Commitments []domain.Commitment `json:"commitments"`
	}](t, w)
	require.Len(t, pending.Commitments, 1)

	w = e.do(t, http.MethodPost, "/api/commitments/"+c.ID+"/verify", payloadRequest{Data: payload})
	assert.True(t, decode[domain.VerifyResult](t, w).Valid)

	w = e.do(t, http.MethodPost, "/api/commitments/"+c.ID+"/reveal", payloadRequest{Data: payload})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rev := decode[domain.Reveal](t, w)
	assert.Equal(t, payload, rev.Data)

	w = e.do(t, http.MethodGet, "/api/commitments/"+c.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[commitmentResponse](t, w)
	assert.True(t, got.CanReveal)
	require.NotNil(t, got.Reveal)
	assert.Equal(t, rev.StorageID, got.Reveal.StorageID)

	w = e.do(t, http.MethodPost, "/api/audit", auditRequest{
		CommitmentStorageID: c.StorageID,
		ReceiptStorageID:    rev.ReceiptStorageID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[commitreveal.AuditReport](t, w).Valid)
}

func TestCommit_DefaultsAndValidation(t *testing.T) {
	e := newTestEnv(t, 0)

	w := e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("a")})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.DataGameState, decode[domain.Commitment](t, w).DataType)

	w = e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("a"), DataType: "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/commitments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommit_StorageFailure(t *testing.T) {
	e := newTestEnv(t, 0)
	e.store.FailUploads = assert.AnError

	w := e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("a")})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestReveal_TooEarly(t *testing.T) {
	e := newTestEnv(t, time.Hour)

	w := e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("secret")})
	c := decode[domain.Commitment](t, w)

	w = e.do(t, http.MethodPost, "/api/commitments/"+c.ID+"/reveal", payloadRequest{Data: []byte("secret")})
	require.Equal(t, http.StatusTooEarly, w.Code)
	body := decode[map[string]any](t, w)
	remaining, ok := body["remaining_ms"].(float64)
	require.True(t, ok)
	assert.Greater(t, remaining, float64(0))
	assert.LessOrEqual(t, remaining, float64(time.Hour.Milliseconds()))

	w = e.do(t, http.MethodGet, "/api/commitments/"+c.ID, nil)
	assert.False(t, decode[commitmentResponse](t, w).CanReveal)
}

func TestReveal_MismatchAndUnknown(t *testing.T) {
	e := newTestEnv(t, 0)

	w := e.do(t, http.MethodPost, "/api/commitments", payloadRequest{Data: []byte("real")})
	c := decode[domain.Commitment](t, w)

	w = e.do(t, http.MethodPost, "/api/commitments/"+c.ID+"/reveal", payloadRequest{Data: []byte("fake")})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/commitments/nope/reveal", payloadRequest{Data: []byte("real")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/commitments/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/commitments/nope/verify", payloadRequest{Data: []byte("real")})
	require.Equal(t, http.StatusOK, w.Code)
	vr := decode[domain.VerifyResult](t, w)
	assert.False(t, vr.Valid)
	assert.NotEmpty(t, vr.Error)
}

func TestAudit_Errors(t *testing.T) {
	e := newTestEnv(t, 0)

	w := e.do(t, http.MethodPost, "/api/audit", auditRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/audit", auditRequest{CommitmentStorageID: "a", ReceiptStorageID: "b"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ─── DHT Fallback ───────────────────────────────────────────────────────────

func TestAnnounceAndPeers(t *testing.T) {
	e := newTestEnv(t, 0)
	kp, err := security.GenerateKeypair()
	require.NoError(t, err)
	e.reg.PutUser(domain.OnChainUser{UserID: "alice", PublicKey: kp.PublicKeyHex(), Active: true})

	ann, err := e.dht.CreateAnnouncement(context.Background(), kp.Private, "0xabc", "10.0.0.9", 6881, domain.EventStarted)
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/dht/announce", ann)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]bool](t, w)["accepted"])

	w = e.do(t, http.MethodGet, "/api/dht/peers/0xabc?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	peers := decode[struct {
		Peers []domain.PeerInfo `json:"peers"`
	}](t, w)
	require.Len(t, peers.Peers, 1)
	assert.Equal(t, "10.0.0.9:6881", peers.Peers[0].Addr())

	w = e.do(t, http.MethodGet, "/api/dht/stats", nil)
	assert.Equal(t, domain.PeerStats{ContentCount: 1, TotalPeers: 1}, decode[domain.PeerStats](t, w))
}

func TestAnnounce_Tampered(t *testing.T) {
	e := newTestEnv(t, 0)
	kp, err := security.GenerateKeypair()
	require.NoError(t, err)
	e.reg.PutUser(domain.OnChainUser{UserID: "bob", PublicKey: kp.PublicKeyHex(), Active: true})

	ann, err := e.dht.CreateAnnouncement(context.Background(), kp.Private, "0xabc", "10.0.0.9", 6881, domain.EventStarted)
	require.NoError(t, err)
	ann.Peer.Port = 9999

	w := e.do(t, http.MethodPost, "/api/dht/announce", ann)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]bool](t, w)["accepted"])
	assert.Zero(t, e.dht.Stats().TotalPeers)
}

func TestPeers_BadLimit(t *testing.T) {
	e := newTestEnv(t, 0)
	w := e.do(t, http.MethodGet, "/api/dht/peers/0xabc?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/dht/peers/0xunknown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	peers := decode[struct {
		Peers []domain.PeerInfo `json:"peers"`
	}](t, w)
	assert.Empty(t, peers.Peers)
}

func TestTrackerEndpoint(t *testing.T) {
	e := newTestEnv(t, 0)
	w := e.do(t, http.MethodGet, "/api/dht/tracker", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	tracker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tracker.Close()
	e.srv.SetTrackerURL(tracker.URL)

	w = e.do(t, http.MethodGet, "/api/dht/tracker", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["available"])
}
