package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/bunkmate/internal/extract"
	"github.com/hyperifyio/bunkmate/internal/fetch"
	"github.com/hyperifyio/bunkmate/internal/message"
	"github.com/hyperifyio/bunkmate/internal/metrics"
	"github.com/hyperifyio/bunkmate/internal/store"
)

const goodPage = `<html><head><title>Attendance</title></head><body>
<span id="cum_slots">40</span><span id="cum_present">35</span></body></html>`

const emptyPage = `<html><head><title>Attendance</title></head><body><p>Loading</p></body></html>`

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	srv := New(message.NewHandler(nil), st)
	return srv, st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) message.Result {
	t.Helper()
	var res message.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func TestPostMessage_ExtractInlineHTML(t *testing.T) {
	srv, st := newTestServer(t)
	bus := message.NewBus()
	sub, cancel := bus.Subscribe(1)
	defer cancel()
	srv.Notifier = bus

	rec := do(t, srv.Router(), http.MethodPost, "/v1/messages", MessageRequest{
		Action: message.ActionExtractData,
		HTML:   goodPage,
		URL:    "https://portal.example/attendance",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeResult(t, rec)
	require.True(t, res.Succeeded())
	require.NotNil(t, res.OK.Record)
	assert.Equal(t, 40, res.OK.Record.TotalClasses)
	assert.Equal(t, 35, res.OK.Record.AttendedClasses)
	assert.Equal(t, extract.MethodDirectID, res.OK.Record.Method)
	assert.Equal(t, "https://portal.example/attendance", res.OK.Record.URL)

	saved, err := store.LoadRecord(context.Background(), st, time.Now(), store.DefaultMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 40, saved.TotalClasses)

	select {
	case n := <-sub:
		assert.Equal(t, message.ActionDataExtracted, n.Action)
		assert.NotEmpty(t, n.ID)
	default:
		t.Fatal("expected a dataExtracted notification")
	}
}

func TestPostMessage_Failures(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Router()

	cases := []struct {
		name   string
		body   any
		status int
		reason message.Reason
	}{
		{"unknown action", MessageRequest{Action: "refresh", HTML: goodPage}, http.StatusBadRequest, message.ReasonUnknownAction},
		{"missing action", map[string]string{"html": goodPage}, http.StatusBadRequest, ReasonBadRequest},
		{"bad url", MessageRequest{Action: message.ActionExtractData, URL: "not a url"}, http.StatusBadRequest, ReasonBadRequest},
		{"no document", MessageRequest{Action: message.ActionExtractData}, http.StatusBadGateway, message.ReasonSourceUnavailable},
		{"nothing on page", MessageRequest{Action: message.ActionExtractData, HTML: emptyPage}, http.StatusUnprocessableEntity, message.ReasonNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/messages", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			res := decodeResult(t, rec)
			require.NotNil(t, res.Err)
			assert.Equal(t, tc.reason, res.Err.Reason)
		})
	}

	_, err := store.LoadRecord(context.Background(), st, time.Now(), 0)
	assert.ErrorIs(t, err, store.ErrNotFound, "failed requests must not store anything")
}

func TestPostMessage_NotFoundCarriesDiagnostics(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Router(), http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionExtractData, HTML: emptyPage})
	res := decodeResult(t, rec)
	require.NotNil(t, res.Err)
	require.NotNil(t, res.Err.Record)
	assert.NotEmpty(t, res.Err.Record.Diagnostics)
}

func TestPostMessage_PageInfo(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Router(), http.MethodPost, "/v1/messages", MessageRequest{
		Action: message.ActionGetPageInfo,
		HTML:   `<html><head><title>Student Attendance</title></head><body><table><tr><td>1</td></tr></table></body></html>`,
		URL:    "https://portal.example/attendance",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	require.NotNil(t, res.OK.PageInfo)
	assert.Equal(t, "Student Attendance", res.OK.PageInfo.Title)
	assert.True(t, res.OK.PageInfo.IsAttendancePage)
	assert.Equal(t, 1, res.OK.PageInfo.TableCount)
	assert.Nil(t, res.OK.Record)
}

func TestPostMessage_FetchesURL(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, goodPage)
	}))
	defer portal.Close()

	srv, _ := newTestServer(t)
	rec := do(t, srv.Router(), http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionExtractData, URL: portal.URL + "/attendance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	assert.Equal(t, 35, res.OK.Record.AttendedClasses)
}

func saveRecord(t *testing.T, st store.Store, total, attended int, at time.Time) {
	t.Helper()
	require.NoError(t, store.SaveRecord(context.Background(), st, extract.Record{
		TotalClasses: total, AttendedClasses: attended, Found: true,
		Outcome: extract.OutcomeFound, Method: extract.MethodDirectID, CapturedAt: at,
	}))
}

func decodeAdvice(t *testing.T, rec *httptest.ResponseRecorder) AdviceResponse {
	t.Helper()
	var out AdviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetAdvice(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	srv, st := newTestServer(t)
	srv.Now = func() time.Time { return now }
	h := srv.Router()

	rec := do(t, h, http.MethodGet, "/v1/advice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, message.ReasonNotFound, decodeResult(t, rec).Err.Reason)

	saveRecord(t, st, 100, 80, now.Add(-5*time.Minute))

	rec = do(t, h, http.MethodGet, "/v1/advice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeAdvice(t, rec)
	assert.Equal(t, 6, out.Advice.Count)
	assert.Equal(t, 80.0, out.Advice.CurrentPercentage)
	assert.Equal(t, "You can safely skip 6 more classes and still maintain 75% attendance.", out.Recommendation)
	assert.Equal(t, "captured 5 minutes ago", out.Staleness)
	assert.False(t, out.Stale)
	assert.False(t, out.Estimated)

	rec = do(t, h, http.MethodGet, "/v1/advice?target=85", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeAdvice(t, rec)
	assert.Equal(t, "must_attend", string(out.Advice.Direction))
	assert.Equal(t, 34, out.Advice.Count)

	for _, q := range []string{"abc", "0", "150", "100"} {
		rec = do(t, h, http.MethodGet, "/v1/advice?target="+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target=%s", q)
		assert.Equal(t, ReasonInvalidTarget, decodeResult(t, rec).Err.Reason)
	}
}

func TestGetAdvice_Stale(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	srv, st := newTestServer(t)
	srv.Now = func() time.Time { return now }
	saveRecord(t, st, 40, 35, now.Add(-3*time.Hour))

	rec := do(t, srv.Router(), http.MethodGet, "/v1/advice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeAdvice(t, rec)
	assert.True(t, out.Stale)
	assert.Equal(t, "captured 3 hours ago", out.Staleness)
	assert.Equal(t, 35, out.Record.AttendedClasses)
}

func TestPutTarget(t *testing.T) {
	srv, st := newTestServer(t)
	srv.Now = time.Now
	h := srv.Router()
	saveRecord(t, st, 100, 80, time.Now())

	rec := do(t, h, http.MethodPut, "/v1/target", TargetRequest{Target: 80})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := store.LoadTarget(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got)

	out := decodeAdvice(t, do(t, h, http.MethodGet, "/v1/advice", nil))
	assert.Equal(t, "at_exact_target", string(out.Advice.Direction))
	assert.Equal(t, "You're at the limit! You can't skip any more classes and still maintain 80% attendance.", out.Recommendation)

	for _, bad := range []float64{0, -5, 101} {
		rec = do(t, h, http.MethodPut, "/v1/target", TargetRequest{Target: bad})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target=%v", bad)
	}
	got, _ = store.LoadTarget(context.Background(), st)
	assert.Equal(t, 80.0, got, "rejected targets must not overwrite the stored one")
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rs := store.NewRedis("127.0.0.1:1")
	defer rs.Close()
	srv = New(message.NewHandler(nil), rs)
	rec = do(t, srv.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, _ := newTestServer(t)
	srv.Handler.Extractor = extract.Default()
	srv.Handler.Extractor.Observer = metrics.New(reg)
	srv.Gatherer = reg
	h := srv.Router()

	do(t, h, http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionExtractData, HTML: goodPage})
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `bunkmate_extractions_total{method="direct_id",outcome="found"} 1`)
	assert.Contains(t, body, `bunkmate_strategy_attempts_total{method="direct_id"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Origins = []string{"http://localhost:3000"}
	req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DefaultsToLoopback(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	preflight := func(origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Header().Get("Access-Control-Allow-Origin")
	}
	assert.Empty(t, preflight("https://evil.example"))
	assert.Equal(t, "http://localhost:5173", preflight("http://localhost:5173"))
	assert.Equal(t, "http://127.0.0.1:8088", preflight("http://127.0.0.1:8088"))
}

func TestPostMessage_PortalHeadersStayOnPortalHost(t *testing.T) {
	cookies := make(chan string, 2)
	page := func(w http.ResponseWriter, r *http.Request) {
		cookies <- r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, goodPage)
	}
	portal := httptest.NewServer(http.HandlerFunc(page))
	defer portal.Close()
	other := httptest.NewServer(http.HandlerFunc(page))
	defer other.Close()

	srv, _ := newTestServer(t)
	srv.Fetch = &fetch.Client{MaxAttempts: 1, Header: http.Header{"Cookie": {"PORTALSESSION=secret"}}}
	srv.PortalURL = portal.URL + "/attendance"
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionGetPageInfo, URL: other.URL + "/page"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, <-cookies, "foreign host must not see the portal cookie")

	rec = do(t, h, http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionGetPageInfo, URL: portal.URL + "/attendance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PORTALSESSION=secret", <-cookies)
}

func TestEvents_StreamsNotifications(t *testing.T) {
	srv, _ := newTestServer(t)
	bus := message.NewBus()
	srv.Bus, srv.Notifier = bus, bus
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		r := bufio.NewReader(resp.Body)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()
	require.Equal(t, ": connected", next(t, lines))

	post := do(t, srv.Router(), http.MethodPost, "/v1/messages", MessageRequest{Action: message.ActionExtractData, HTML: goodPage})
	require.Equal(t, http.StatusOK, post.Code)

	for {
		line := next(t, lines)
		if strings.HasPrefix(line, "data: ") {
			var n message.Notification
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n))
			assert.Equal(t, 40, n.Record.TotalClasses)
			return
		}
	}
}

func next(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case l, ok := <-lines:
		require.True(t, ok, "stream closed")
		return l
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event stream")
	}
	return ""
}
