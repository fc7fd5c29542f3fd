package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/session"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-secret"
	testCookieName    = "mhcn_session"
	testMaxBodyBytes  = 256 << 10
)

type testServer struct {
	handler  http.Handler
	store    *rooms.Store
	sessions *session.Manager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := rooms.NewStore(rooms.StoreConfig{
		Blobs: storage.NewMemoryStore(),
		Keys:  crypto.NewKeyDeriver(16),
	})
	if err != nil {
		t.Fatalf("failed to construct room store: %v", err)
	}
	sessions, err := session.NewManager(session.ManagerConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct session manager: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Rooms:        store,
		Sessions:     sessions,
		MaxBodyBytes: testMaxBodyBytes,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return testServer{handler: handler, store: store, sessions: sessions}
}

func (s testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) postForm(t *testing.T, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

// genericResponse covers every field the handlers emit.
type genericResponse struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error"`
	Code     string          `json:"code"`
	Cipher   string          `json:"cipher"`
	Version  string          `json:"version"`
	Messages []rooms.Message `json:"messages"`
	Username string          `json:"username"`
}

func (s testServer) handlerRequest(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}
