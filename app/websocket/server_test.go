package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"LabelPrinter/app/models"
	"LabelPrinter/app/security"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrinter struct {
	mu        sync.Mutex
	submitted []models.PrintRequest
	confirmed map[string]bool

	submit func(req models.PrintRequest) (models.PrintRun, error)
}

func (f *fakePrinter) Submit(ctx context.Context, req models.PrintRequest) (models.PrintRun, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(req)
	}
	return models.PrintRun{ID: "run-1", OrderID: req.OrderID, State: models.RunCommitted, CopiesSent: req.BoxCount}, nil
}

func (f *fakePrinter) ConfirmDuplicate(ctx context.Context, runID string, proceed bool) (models.PrintRun, error) {
	if runID != "run-1" {
		return models.PrintRun{}, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	f.mu.Lock()
	if f.confirmed == nil {
		f.confirmed = make(map[string]bool)
	}
	f.confirmed[runID] = proceed
	f.mu.Unlock()

	state := models.RunAborted
	if proceed {
		state = models.RunCommitted
	}
	return models.PrintRun{ID: runID, State: state}, nil
}

func (f *fakePrinter) Run(runID string) (models.PrintRun, error) {
	if runID != "run-1" {
		return models.PrintRun{}, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	return models.PrintRun{ID: runID, State: models.RunAwaitingConfirmation}, nil
}

func (f *fakePrinter) QueryHistory() []models.HistoryEntry {
	return []models.HistoryEntry{{OrderID: "A100", Customer: "Nguyen Van A", BoxQty: 3, Timestamp: "t"}}
}

func (f *fakePrinter) QueryDuplicates() map[string]int {
	return map[string]int{"A100": 2}
}

func (f *fakePrinter) HistoryView() []models.HistoryRow {
	return []models.HistoryRow{{HistoryEntry: models.HistoryEntry{OrderID: "A100"}, PrintCount: 2, Duplicate: true}}
}

func (f *fakePrinter) Preview(orderID, customer string, boxCount int) ([]models.CopyPreview, error) {
	label, err := models.NewLabel(orderID, customer, boxCount)
	if err != nil {
		return nil, err
	}
	return label.Preview(), nil
}

func newTestServer(t *testing.T, cfg ServerConfig, printer PrintOrchestrator) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(cfg, printer)
	go srv.run()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop(context.Background())
	})
	return srv, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, &fakePrinter{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_SubmitPrint(t *testing.T) {
	printer := &fakePrinter{}
	_, ts := newTestServer(t, ServerConfig{}, printer)

	resp := postJSON(t, ts.URL+"/api/print",
		`{"order_id":"A100","customer":"Nguyen Van A","box_count":3,"target":{"kind":"network","host":"10.0.0.5"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, models.RunCommitted, body.Run.State)
	assert.Empty(t, body.Error)

	require.Len(t, printer.submitted, 1)
	assert.Equal(t, "A100", printer.submitted[0].OrderID)
	assert.Equal(t, models.TransportNetwork, printer.submitted[0].Target.Kind)
}

func TestServer_SubmitStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		run    models.PrintRun
		err    error
		status int
	}{
		{"awaiting confirmation", models.PrintRun{ID: "r", State: models.RunAwaitingConfirmation}, nil, http.StatusAccepted},
		{"validation", models.PrintRun{ID: "r", State: models.RunAborted}, &models.ValidationError{Field: "customer", Message: "required"}, http.StatusBadRequest},
		{"transport", models.PrintRun{ID: "r", State: models.RunAborted}, &models.TransportError{Kind: models.TransportNetwork, Reason: "refused"}, http.StatusBadGateway},
		{"render", models.PrintRun{ID: "r", State: models.RunAborted}, &models.RenderError{OrderID: "A", Cause: fmt.Errorf("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer := &fakePrinter{submit: func(models.PrintRequest) (models.PrintRun, error) { return tt.run, tt.err }}
			_, ts := newTestServer(t, ServerConfig{}, printer)

			resp := postJSON(t, ts.URL+"/api/print", `{"order_id":"A100","customer":"C","box_count":1}`)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body RunResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.run.State, body.Run.State)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), body.Error)
			}
		})
	}
}

func TestServer_BadBody(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, &fakePrinter{})

	resp := postJSON(t, ts.URL+"/api/print", `{"order_id":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ConfirmAndGetRun(t *testing.T) {
	printer := &fakePrinter{}
	_, ts := newTestServer(t, ServerConfig{}, printer)

	resp := postJSON(t, ts.URL+"/api/print/run-1/confirm", `{"proceed":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, printer.confirmed["run-1"])

	resp = postJSON(t, ts.URL+"/api/print/missing/confirm", `{"proceed":false}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	get, err := http.Get(ts.URL + "/api/print/run-1")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusAccepted, get.StatusCode)
}

func TestServer_HistoryAndDuplicates(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, &fakePrinter{})

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []models.HistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "A100", entries[0].OrderID)

	rows, err := http.Get(ts.URL + "/api/history?view=rows")
	require.NoError(t, err)
	defer rows.Body.Close()
	var raw []map[string]interface{}
	require.NoError(t, json.NewDecoder(rows.Body).Decode(&raw))
	require.Len(t, raw, 1)
	assert.Equal(t, true, raw[0]["duplicate"])

	dupes, err := http.Get(ts.URL + "/api/duplicates")
	require.NoError(t, err)
	defer dupes.Body.Close()
	var counts map[string]int
	require.NoError(t, json.NewDecoder(dupes.Body).Decode(&counts))
	assert.Equal(t, map[string]int{"A100": 2}, counts)
}

func TestServer_Preview(t *testing.T) {
	_, ts := newTestServer(t, ServerConfig{}, &fakePrinter{})

	resp := postJSON(t, ts.URL+"/api/preview", `{"order_id":"A100","customer":"Nguyen Van A","box_count":2}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var copies []models.CopyPreview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&copies))
	require.Len(t, copies, 2)
	assert.Equal(t, "BOX: #1 / 2", copies[0].Box)

	bad := postJSON(t, ts.URL+"/api/preview", `{"order_id":"A100","customer":"","box_count":2}`)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServer_RequiresAPIKey(t *testing.T) {
	key, err := security.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := security.HashAPIKey(key)
	require.NoError(t, err)

	_, ts := newTestServer(t, ServerConfig{APIKeyHash: hash}, &fakePrinter{})

	resp, err := http.Get(ts.URL + "/api/duplicates")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/duplicates", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer "+key)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/duplicates?token=" + key)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_APIKeyVerifiedOnce(t *testing.T) {
	key, err := security.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := security.HashAPIKey(key)
	require.NoError(t, err)

	srv := NewServer(ServerConfig{APIKeyHash: hash}, &fakePrinter{})
	calls := 0
	srv.verifyKey = func(hash, key string) error {
		calls++
		return security.VerifyAPIKey(hash, key)
	}

	assert.True(t, srv.checkAPIKey(key))
	assert.True(t, srv.checkAPIKey(key))
	assert.Equal(t, 1, calls)

	assert.False(t, srv.checkAPIKey("wrong"))
	assert.False(t, srv.checkAPIKey("wrong"))
	assert.Equal(t, 3, calls)

	assert.False(t, srv.checkAPIKey(""))
	assert.Equal(t, 3, calls)
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, want MessageType) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestServer_WebSocketReceivesRunUpdates(t *testing.T) {
	srv, ts := newTestServer(t, ServerConfig{}, &fakePrinter{})
	conn := dialWS(t, ts)

	readMessage(t, conn, TypeAuthResponse)
	assert.Equal(t, 1, srv.ClientCount())

	srv.BroadcastRun(models.PrintRun{ID: "run-9", OrderID: "A100", State: models.RunDispatching, CopiesSent: 1})

	msg := readMessage(t, conn, TypePrintUpdate)
	var run models.PrintRun
	require.NoError(t, json.Unmarshal(msg.Data, &run))
	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, models.RunDispatching, run.State)
}

func TestServer_WebSocketSubmit(t *testing.T) {
	printer := &fakePrinter{}
	_, ts := newTestServer(t, ServerConfig{}, printer)
	conn := dialWS(t, ts)
	readMessage(t, conn, TypeAuthResponse)

	data, err := json.Marshal(models.PrintRequest{OrderID: "A100", Customer: "Nguyen Van A", BoxCount: 2})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: TypePrintSubmit, Data: data}))

	msg := readMessage(t, conn, TypePrintResult)
	var result RunResponse
	require.NoError(t, json.Unmarshal(msg.Data, &result))
	assert.Equal(t, models.RunCommitted, result.Run.State)
	assert.Equal(t, 2, result.Run.CopiesSent)

	require.NoError(t, conn.WriteJSON(Message{Type: "bogus", Data: json.RawMessage(`{}`)}))
	errMsg := readMessage(t, conn, TypeError)
	assert.True(t, bytes.Contains(errMsg.Data, []byte("unknown message type")))
}
