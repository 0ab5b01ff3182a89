package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wh0th3h3llam1/agent-aid/internal/extract"
	"github.com/wh0th3h3llam1/agent-aid/internal/geo"
	"github.com/wh0th3h3llam1/agent-aid/internal/intake"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
	"github.com/wh0th3h3llam1/agent-aid/internal/requeststore"
	"github.com/wh0th3h3llam1/agent-aid/internal/session"
	"github.com/wh0th3h3llam1/agent-aid/internal/similarity"
)

func newTestServer(t *testing.T, client extract.Client) (*Server, *intake.Engine) {
	t.Helper()
	engine := intake.NewEngine(intake.Options{
		Client:     client,
		Sessions:   session.NewStore(session.DefaultTTL),
		Requests:   requeststore.NewStore(),
		Index:      similarity.NewBruteForceIndex(similarity.DefaultDims),
		Matcher:    geo.NewMatcher(),
		BatchDelay: time.Millisecond,
	})
	return New(":0", engine, nil), engine
}

func completeClient() *extract.FakeClient {
	return &extract.FakeClient{
		ExtractFunc: func(string) (*models.DisasterRequest, error) {
			return &models.DisasterRequest{
				Items:          []string{"bottled water"},
				QuantityNeeded: "50 units",
				Location:       "123 Main Street, Springfield",
				Contact:        "555-0100",
				Priority:       models.PriorityHigh,
			}, nil
		},
	}
}

func vagueClient() *extract.FakeClient {
	return &extract.FakeClient{
		ExtractFunc: func(string) (*models.DisasterRequest, error) {
			return &models.DisasterRequest{
				Items:    []string{"medicine"},
				Location: "downtown",
			}, nil
		},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestExtract_Complete(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{
		"input": "need 50 bottles of water at 123 Main Street, call 555-0100",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["needs_followup"])
	assert.EqualValues(t, 100, body["completeness_score"])

	data := body["data"].(map[string]any)
	assert.Contains(t, data["request_id"], "REQ-")
	assert.Equal(t, "pending", data["status"])
}

func TestExtract_NeedsFollowup(t *testing.T) {
	srv, _ := newTestServer(t, vagueClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{
		"input": "we need medicine downtown",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["needs_followup"])
	assert.Contains(t, body["session_id"], "SESSION-")
	assert.NotEmpty(t, body["followup_message"])
	assert.NotEmpty(t, body["issues"])
}

func TestExtract_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])

	req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewBufferString("{not json"))
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	assert.Equal(t, http.StatusBadRequest, rr2.Code)
}

func TestExtract_CollaboratorFailureMapsTo502(t *testing.T) {
	srv, _ := newTestServer(t, &extract.FakeClient{})
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "anything"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestExtract_UnknownSessionMapsTo404(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{
		"input": "anything", "session_id": "SESSION-gone",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestExtractBatch(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/extract/batch", map[string]any{
		"inputs": []string{"report one", "report two"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, body["count"])
	results := body["results"].([]any)
	for _, raw := range results {
		item := raw.(map[string]any)
		assert.Equal(t, true, item["success"])
	}
}

func TestRequestLifecycleRoutes(t *testing.T) {
	srv, engine := newTestServer(t, completeClient())
	h := srv.Handler()

	// Commit one request through the API.
	_, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "water"})
	id := body["data"].(map[string]any)["request_id"].(string)

	rr, body := doJSON(t, h, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, body = doJSON(t, h, http.MethodGet, "/api/requests/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, body["request"].(map[string]any)["request_id"])

	rr, _ = doJSON(t, h, http.MethodGet, "/api/requests/REQ-0-missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = doJSON(t, h, http.MethodGet, "/api/requests/priority/high", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	// Agent surface: pending, claim, update, updates, cleanup.
	rr, body = doJSON(t, h, http.MethodGet, "/api/uagent/pending-requests", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])
	pendingView := body["requests"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 3, pendingView["urgency_level"]) // high priority
	assert.Equal(t, false, pendingView["geocoded"])

	rr, body = doJSON(t, h, http.MethodGet, "/api/uagent/request/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	agentRec := body["request"].(map[string]any)
	assert.Equal(t, id, agentRec["request_id"])
	assert.EqualValues(t, 3, agentRec["urgency_level"])

	rr, body = doJSON(t, h, http.MethodPost, "/api/uagent/claim-request", map[string]any{
		"request_id": id, "agent_id": "test_agent_001",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	claimed := body["request"].(map[string]any)
	assert.Equal(t, "processing", claimed["status"])
	assert.NotEmpty(t, claimed["processed_at"])

	rr, _ = doJSON(t, h, http.MethodPost, "/api/uagent/update", map[string]any{
		"request_id": id, "agent_id": "test_agent_001", "status": "fulfilled",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = doJSON(t, h, http.MethodGet, "/api/uagent/updates", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, body = doJSON(t, h, http.MethodPost, "/api/uagent/cleanup", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Empty(t, engine.Requests().List())
}

func TestClaim_Validation(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, _ := doJSON(t, h, http.MethodPost, "/api/uagent/claim-request", map[string]any{"request_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = doJSON(t, h, http.MethodPost, "/api/uagent/claim-request", map[string]any{
		"request_id": "REQ-0-missing", "agent_id": "a1",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSearchSimilar(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "water"})

	rr, body := doJSON(t, h, http.MethodPost, "/api/search/similar", map[string]any{
		"query": "bottled water springfield",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, _ = doJSON(t, h, http.MethodPost, "/api/search/similar", map[string]any{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNearby(t *testing.T) {
	client := completeClient()
	base := client.ExtractFunc
	client.ExtractFunc = func(in string) (*models.DisasterRequest, error) {
		rec, _ := base(in)
		rec.Coordinates = &models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}
		return rec, nil
	}
	srv, _ := newTestServer(t, client)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "water"})

	rr, body := doJSON(t, h, http.MethodPost, "/api/uagent/requests-nearby", map[string]any{
		"latitude": 37.7749, "longitude": -122.4194,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])
	match := body["matches"].([]any)[0].(map[string]any)
	assert.Equal(t, true, match["request"].(map[string]any)["geocoded"])
	assert.Less(t, match["distance_km"].(float64), 1.0)

	rr, body = doJSON(t, h, http.MethodPost, "/api/uagent/requests-nearby", map[string]any{
		"latitude": 34.0522, "longitude": -118.2437, "radius_km": 5,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestSessionRoutes(t *testing.T) {
	srv, _ := newTestServer(t, vagueClient())
	h := srv.Handler()

	_, body := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "medicine"})
	sid := body["session_id"].(string)

	rr, body := doJSON(t, h, http.MethodGet, "/api/session/"+sid, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, sid, body["session"].(map[string]any)["session_id"])

	rr, _ = doJSON(t, h, http.MethodPost, "/api/session/cancel", map[string]any{"session_id": sid})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = doJSON(t, h, http.MethodGet, "/api/session/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDistance(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodPost, "/api/distance", map[string]any{
		"lat1": 37.7749, "lon1": -122.4194, "lat2": 34.0522, "lon2": -118.2437,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	km := body["distance_km"].(float64)
	miles := body["distance_miles"].(float64)
	assert.InDelta(t, 559, km, 10)
	assert.InDelta(t, km*0.621371, miles, 0.001)
}

func TestHealthAndStats(t *testing.T) {
	srv, _ := newTestServer(t, completeClient())
	h := srv.Handler()

	rr, body := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])

	doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"input": "water"})

	rr, body = doJSON(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["total_requests"])
	assert.EqualValues(t, 1, stats["indexed"])
}
