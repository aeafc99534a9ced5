package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"fundchain/core"
	"fundchain/core/genesis"
	"fundchain/crypto"
	"fundchain/native/crowdfund"
	"fundchain/storage"
	"fundchain/storage/idempotency"
	"fundchain/storage/journal"
)

const testSecret = "rpc-test-secret-0123456789"

type rpcFixture struct {
	server  *httptest.Server
	node    *core.Node
	clock   *core.FixedClock
	journal *journal.Journal
	auth    AuthConfig
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	j, err := journal.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	clock := core.NewFixedClock(1_000)
	node, err := core.NewNode(storage.NewMemDB(), core.WithClock(clock), core.WithEmitter(j), core.WithLogger(logger))
	require.NoError(t, err)

	store, err := idempotency.Open(idempotency.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	auth := AuthConfig{HMACSecret: testSecret, Issuer: "fund-test"}
	srv, err := NewServer(node, j, Config{
		Auth:        auth,
		RateLimit:   RateLimitConfig{RequestsPerSecond: 1_000, Burst: 1_000},
		Idempotency: store,
		Logger:      logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &rpcFixture{server: ts, node: node, clock: clock, journal: j, auth: auth}
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func (f *rpcFixture) token(t *testing.T, who [20]byte) string {
	t.Helper()
	token, err := IssueToken(f.auth, who, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func (f *rpcFixture) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	status, data, _ := f.doWithHeaders(t, method, path, token, body, nil)
	return status, data
}

func (f *rpcFixture) doWithHeaders(t *testing.T, method, path, token string, body interface{}, headers map[string]string) (int, []byte, http.Header) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data, resp.Header
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	return body.Error.Code
}

func (f *rpcFixture) createCampaign(t *testing.T, token string, goal string) CampaignResponse {
	t.Helper()
	status, data := f.do(t, http.MethodPost, "/campaigns", token, CreateCampaignRequest{
		Title:   "Community garden",
		Goal:    goal,
		StartAt: 1_100,
		EndAt:   2_000,
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	var out CampaignResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestMutationsRequireToken(t *testing.T) {
	f := newRPCFixture(t)
	status, data := f.do(t, http.MethodPost, "/campaigns", "", CreateCampaignRequest{Goal: "10", StartAt: 1_100, EndAt: 2_000})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthenticated", errorCode(t, data))

	other := AuthConfig{HMACSecret: "another-secret-entirely", Issuer: "fund-test"}
	forged, err := IssueToken(other, addr(0x01), time.Hour, time.Now())
	require.NoError(t, err)
	status, _ = f.do(t, http.MethodPost, "/campaigns", forged, CreateCampaignRequest{Goal: "10", StartAt: 1_100, EndAt: 2_000})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	f := newRPCFixture(t)
	authority, donor := addr(0x01), addr(0x02)
	_, err := f.node.ApplyGenesis([]genesis.Allocation{{Address: donor, Amount: big.NewInt(500)}})
	require.NoError(t, err)

	authorityToken := f.token(t, authority)
	donorToken := f.token(t, donor)
	created := f.createCampaign(t, authorityToken, "300")
	require.Equal(t, crypto.FormatFundAddress(authority), created.Authority)
	require.Equal(t, "active", created.Status)
	require.Equal(t, "300", created.Remaining)

	title := "Community garden 2"
	status, data := f.do(t, http.MethodPatch, "/campaigns/"+created.ID, authorityToken, UpdateMetadataRequest{Title: &title})
	require.Equal(t, http.StatusOK, status, string(data))

	status, data = f.do(t, http.MethodPatch, "/campaigns/"+created.ID, donorToken, UpdateMetadataRequest{Title: &title})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "unauthorized", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/donations", donorToken, DonateRequest{Amount: "10"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "not_started", errorCode(t, data))

	f.clock.Set(1_100)
	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/donations", donorToken, DonateRequest{Amount: "450"})
	require.Equal(t, http.StatusOK, status, string(data))
	var accepted AmountResponse
	require.NoError(t, json.Unmarshal(data, &accepted))
	require.Equal(t, "300", accepted.Amount)

	status, data = f.do(t, http.MethodGet, "/campaigns/"+created.ID+"/contributions/"+crypto.FormatFundAddress(donor), "", nil)
	require.Equal(t, http.StatusOK, status)
	var contribution ContributionResponse
	require.NoError(t, json.Unmarshal(data, &contribution))
	require.Equal(t, "300", contribution.Amount)

	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/claim", authorityToken, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "not_yet_over", errorCode(t, data))

	f.clock.Set(2_001)
	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/claim", authorityToken, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/claim", authorityToken, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "already_claimed", errorCode(t, data))

	status, data = f.do(t, http.MethodGet, "/accounts/"+crypto.FormatFundAddress(authority), "", nil)
	require.Equal(t, http.StatusOK, status)
	var account AccountResponse
	require.NoError(t, json.Unmarshal(data, &account))
	require.Equal(t, "300", account.Balance)

	status, data = f.do(t, http.MethodGet, "/events?campaign="+created.ID, "", nil)
	require.Equal(t, http.StatusOK, status)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 4)
	require.Equal(t, crowdfund.EventTypeCampaignCreated, entries[0].Type)
	require.Equal(t, crowdfund.EventTypeDonationsClaimed, entries[3].Type)
	for _, entry := range entries {
		require.True(t, journal.Verify(entry))
	}
}

func TestErrorMapping(t *testing.T) {
	f := newRPCFixture(t)
	token := f.token(t, addr(0x01))
	created := f.createCampaign(t, token, "50")

	status, data := f.do(t, http.MethodGet, "/campaigns/0x"+strings.Repeat("ab", 32), "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "campaign_not_found", errorCode(t, data))

	status, data = f.do(t, http.MethodGet, "/campaigns/not-an-id", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_campaign_id", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns", token, CreateCampaignRequest{Goal: "0", StartAt: 1_100, EndAt: 2_000})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_goal", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns", token, CreateCampaignRequest{Goal: "-4", StartAt: 1_100, EndAt: 2_000})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_goal", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns", token, map[string]interface{}{"goal": "5", "surprise": true})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "bad_request", errorCode(t, data))

	f.clock.Set(1_200)
	donor := f.token(t, addr(0x07))
	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/donations", donor, DonateRequest{Amount: "5"})
	require.Equal(t, http.StatusPaymentRequired, status)
	require.Equal(t, "insufficient_funds", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/donations", donor, DonateRequest{Amount: "0"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "zero_amount", errorCode(t, data))

	status, data = f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "already_started", errorCode(t, data))
}

func TestListCampaignsFilters(t *testing.T) {
	f := newRPCFixture(t)
	alice, bob := addr(0x01), addr(0x02)
	f.createCampaign(t, f.token(t, alice), "10")
	second := f.createCampaign(t, f.token(t, bob), "10")
	status, _ := f.do(t, http.MethodPost, "/campaigns/"+second.ID+"/cancel", f.token(t, bob), nil)
	require.Equal(t, http.StatusOK, status)

	status, data := f.do(t, http.MethodGet, "/campaigns?status=cancelled", "", nil)
	require.Equal(t, http.StatusOK, status)
	var out []CampaignResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	require.Equal(t, second.ID, out[0].ID)

	status, data = f.do(t, http.MethodGet, "/campaigns?authority="+crypto.FormatFundAddress(alice), "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)

	status, data = f.do(t, http.MethodGet, "/campaigns?status=pending", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_status", errorCode(t, data))
}

func TestEventStreamReplaysAndFollows(t *testing.T) {
	f := newRPCFixture(t)
	token := f.token(t, addr(0x01))
	created := f.createCampaign(t, token, "10")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/events/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() journal.Entry {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var entry journal.Entry
		require.NoError(t, json.Unmarshal(data, &entry))
		return entry
	}
	first := read()
	require.Equal(t, crowdfund.EventTypeCampaignCreated, first.Type)
	require.Equal(t, created.ID, first.Campaign)

	status, _ := f.do(t, http.MethodPost, "/campaigns/"+created.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, status)
	next := read()
	require.Equal(t, crowdfund.EventTypeCampaignCancelled, next.Type)
	require.Greater(t, next.Sequence, first.Sequence)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newRPCFixture(t)
	status, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	f.do(t, http.MethodGet, "/campaigns", "", nil)
	status, data := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(data), "fund_rpc_requests_total")
}

func TestIdempotentDonationReplays(t *testing.T) {
	f := newRPCFixture(t)
	authority, donor := addr(0x01), addr(0x02)
	_, err := f.node.ApplyGenesis([]genesis.Allocation{{Address: donor, Amount: big.NewInt(100)}})
	require.NoError(t, err)
	created := f.createCampaign(t, f.token(t, authority), "1000")
	f.clock.Set(1_100)

	token := f.token(t, donor)
	headers := map[string]string{idempotencyHeader: "donation-1"}
	path := "/campaigns/" + created.ID + "/donations"
	status, first, hdr := f.doWithHeaders(t, http.MethodPost, path, token, DonateRequest{Amount: "40"}, headers)
	require.Equal(t, http.StatusOK, status, string(first))
	require.Empty(t, hdr.Get(replayedHeader))

	status, second, hdr := f.doWithHeaders(t, http.MethodPost, path, token, DonateRequest{Amount: "40"}, headers)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "true", hdr.Get(replayedHeader))
	require.JSONEq(t, string(first), string(second))

	balance, err := f.node.Balance(donor)
	require.NoError(t, err)
	require.Equal(t, int64(60), balance.Int64())

	status, data, _ := f.doWithHeaders(t, http.MethodPost, path, token, DonateRequest{Amount: "41"}, headers)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "idempotency_key_reused", errorCode(t, data))

	// Keys are scoped per caller.
	other := addr(0x03)
	status, data, _ = f.doWithHeaders(t, http.MethodPost, path, f.token(t, other), DonateRequest{Amount: "40"}, headers)
	require.Equal(t, http.StatusPaymentRequired, status)
	require.Equal(t, "insufficient_funds", errorCode(t, data))
}
