package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/concierge-bot/internal/models"
	"go.uber.org/zap"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.InboundEvent
	err    error
}

func (s *captureSink) Accept(e models.InboundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func newTestServer(t *testing.T, sink EventSink, cfg Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := NewServer(sink, cfg, zap.NewNop())
	require.NoError(t, err)
	return s
}

func postForm(h http.Handler, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func inboundForm() url.Values {
	return url.Values{
		"Body": {"Thank you"},
		"From": {"whatsapp:+971500000001"},
		"To":   {"whatsapp:+14155238886"},
	}
}

func TestInboundAcceptsAndAcknowledges(t *testing.T) {
	sink := &captureSink{}
	s := newTestServer(t, sink, Config{})

	w := postForm(s.Handler(), "/whatsapp", inboundForm(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, w.Body.String(), "<Response")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, "whatsapp:+971500000001", e.From)
	assert.Equal(t, "whatsapp:+14155238886", e.To)
	assert.Equal(t, "Thank you", e.Body)
	assert.False(t, e.ReceivedAt.IsZero())
}

func TestInboundAcknowledgesEvenWhenSinkFails(t *testing.T) {
	sink := &captureSink{err: errors.New("queue closed")}
	s := newTestServer(t, sink, Config{Path: "/hooks/sms"})

	w := postForm(s.Handler(), "/hooks/sms", inboundForm(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response")
}

func TestInboundWithoutSenderIsIgnored(t *testing.T) {
	sink := &captureSink{}
	s := newTestServer(t, sink, Config{})

	w := postForm(s.Handler(), "/whatsapp", url.Values{"Body": {"hi"}}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sink.events)
}

func TestSignatureValidation(t *testing.T) {
	const token = "test-auth-token"
	const base = "https://concierge.example.com"

	sink := &captureSink{}
	s := newTestServer(t, sink, Config{
		ValidateSignature: true,
		AuthToken:         token,
		PublicBaseURL:     base,
	})

	form := inboundForm()

	w := postForm(s.Handler(), "/whatsapp", form, map[string]string{signatureHeader: "bogus"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, sink.events)

	w = postForm(s.Handler(), "/whatsapp", form, map[string]string{
		signatureHeader: sign(token, base+"/whatsapp", form),
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sink.events, 1)
}

func TestSignatureValidationNeedsSecrets(t *testing.T) {
	_, err := NewServer(&captureSink{}, Config{ValidateSignature: true}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(nil, Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &captureSink{}, Config{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServesActivityMedia(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family_yoga.jpg"), []byte("jpeg"), 0o600))

	s := newTestServer(t, &captureSink{}, Config{MediaDir: dir})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity/family_yoga.jpg", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())
}

func TestMalformedFormIsAcknowledged(t *testing.T) {
	sink := &captureSink{}
	s := newTestServer(t, sink, Config{})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader("Body=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response")
	assert.Empty(t, sink.events)
}

func TestInboundRouteCanBeDisabled(t *testing.T) {
	sink := &captureSink{}
	s := newTestServer(t, sink, Config{Path: "/whatsapp", DisableInbound: true})

	form := url.Values{"Body": {"Hello"}, "From": {"telegram:123456"}}
	w := postForm(s.Handler(), "/whatsapp", form, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, sink.events)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := NewServer(nil, Config{DisableInbound: true}, zap.NewNop())
	assert.NoError(t, err)
}
