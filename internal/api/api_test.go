package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/api/handlers"
	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/runner"
	"github.com/wonny/factorloop/pkg/logger"
)

type fakeLoop struct {
	status  runner.Status
	ranking contracts.Ranking
}

func (f *fakeLoop) Status() runner.Status { return f.status }

func (f *fakeLoop) Ranking() (contracts.Ranking, contracts.RegimeState) {
	return f.ranking, contracts.RegimeState{Regime: contracts.RegimeBull, PositionMultiplier: 1}
}

func (f *fakeLoop) Runtime() runner.RuntimeState {
	daily := contracts.NewDailyRiskState("2024-05-06")
	daily.RecordBuy("600001", 14000)
	return runner.RuntimeState{
		Date:    "2024-05-06",
		Daily:   daily,
		Managed: contracts.NewManagedSet("600001"),
	}
}

func newTestRouter(hub *Hub) http.Handler {
	loop := &fakeLoop{
		status: runner.Status{Date: "2024-05-06", Trading: true, Monitored: 3, Regime: contracts.RegimeBull},
		ranking: contracts.Ranking{
			{InstrumentID: "a", Rank: 1}, {InstrumentID: "b", Rank: 2}, {InstrumentID: "c", Rank: 3},
		},
	}
	log := logger.NewNop()
	return NewRouter(RouterDeps{
		Status:  handlers.NewStatusHandler(loop, nil, log),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }),
		Hub:     hub,
	}, log)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(nil)

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "ok"},
		{"/api/status", http.StatusOK, `"monitored":3`},
		{"/api/state", http.StatusOK, `"managed":["600001"]`},
		{"/api/jobs", http.StatusNotFound, "scheduler not running"},
		{"/api/ranking?top=x", http.StatusBadRequest, "top"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRanking_Top(t *testing.T) {
	rec := get(t, newTestRouter(nil), "/api/ranking?top=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.RankingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"a", "b"}, resp.Ranking.IDs())
	assert.Equal(t, contracts.RegimeBull, resp.Regime.Regime)
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHub_BroadcastsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, logger.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(MsgTypeStatus, runner.Status{Date: "2024-05-06", Monitored: 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MsgTypeStatus, msg.Type)

	var st runner.Status
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	assert.Equal(t, 7, st.Monitored)
}

func TestOriginChecker(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/status", nil)
	req.Header.Set("Origin", "http://evil.example")

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
	assert.False(t, originChecker([]string{"http://localhost:3000"})(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, originChecker([]string{"http://localhost:3000"})(req))
}
