package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/syncer"
	"github.com/danmuck/xrsync/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubClient struct {
	status syncer.Status
	sent   []float32
	err    error
}

func (s *stubClient) Status() syncer.Status { return s.status }

func (s *stubClient) SendHaptic(_ context.Context, _ uint16, _ uint32, _ uint32, amplitude, _ float32) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, amplitude)
	return nil
}

func newRouter(client Client, proxies Proxies) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := NewEngine("sync-test", nil)
	RegisterCommon(r, "sync-test", time.Now())
	RegisterClient(r, client, proxies)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	r := newRouter(&stubClient{}, nil)

	rr := do(r, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("health code=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(r, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "xrsync_http_requests_total") {
		t.Fatalf("metrics code=%d", rr.Code)
	}
	logs.Logf("statusapi/http: GET /metrics status=%d", rr.Code)
}

func TestStatusAndReady(t *testing.T) {
	testlog.Start(t)
	client := &stubClient{status: syncer.Status{RelayURL: "ws://relay/session", PeerID: 3, Transport: "open"}}
	r := newRouter(client, nil)

	rr := do(r, http.MethodGet, "/status", "")
	var st syncer.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil || st.PeerID != 3 || st.Transport != "open" {
		t.Fatalf("status=%+v err=%v body=%s", st, err, rr.Body.String())
	}

	if rr := do(r, http.MethodGet, "/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("untrusted ready code=%d", rr.Code)
	}
	client.status.Trusted = true
	if rr := do(r, http.MethodGet, "/ready", ""); rr.Code != http.StatusOK {
		t.Fatalf("trusted ready code=%d", rr.Code)
	}
}

func TestProxies(t *testing.T) {
	testlog.Start(t)
	factory := reconcile.NewRecordingFactory()
	factory.Create(reconcile.Key{Peer: 2, Device: 1}, uuid.New())
	r := newRouter(&stubClient{}, factory)

	rr := do(r, http.MethodGet, "/proxies", "")
	var body struct {
		Proxies []reconcile.Snapshot `json:"proxies"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Proxies) != 1 || body.Proxies[0].Key.Peer != 2 {
		t.Fatalf("proxies=%+v", body.Proxies)
	}
}

func TestHaptic(t *testing.T) {
	testlog.Start(t)
	client := &stubClient{}
	r := newRouter(client, nil)

	rr := do(r, http.MethodPost, "/haptic", `{"peer":2,"device":1,"channel":0,"amplitude":0.5,"duration":0.2}`)
	if rr.Code != http.StatusAccepted || len(client.sent) != 1 || client.sent[0] != 0.5 {
		t.Fatalf("code=%d sent=%v body=%s", rr.Code, client.sent, rr.Body.String())
	}
	if rr := do(r, http.MethodPost, "/haptic", `{"peer":2,"amplitude":3}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range amplitude code=%d", rr.Code)
	}

	client.err = syncer.ErrNotInitialized
	if rr := do(r, http.MethodPost, "/haptic", `{"peer":2,"amplitude":0.1}`); rr.Code != http.StatusConflict {
		t.Fatalf("not initialized code=%d", rr.Code)
	}
}
