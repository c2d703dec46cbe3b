package notifier

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	status   int
	requests int
	lastBody string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.requests++
	raw, _ := io.ReadAll(req.Body)
	s.lastBody = string(raw)
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     make(http.Header),
	}, nil
}

func TestTelegramRequiresConfiguration(t *testing.T) {
	tg := NewTelegram("", "")
	assert.Error(t, tg.SendText("hello"))
}

func TestTelegramSendText(t *testing.T) {
	stub := &stubTransport{status: http.StatusOK}
	tg := NewTelegram("token", "chat-1")
	tg.Client = &http.Client{Transport: stub}

	require.NoError(t, tg.SendText("position opened: AAPL"))
	assert.Equal(t, 1, stub.requests)
	assert.Contains(t, stub.lastBody, "chat-1")
	assert.Contains(t, stub.lastBody, "position opened: AAPL")
}

func TestTelegramRetriesOnServerError(t *testing.T) {
	stub := &stubTransport{status: http.StatusBadGateway}
	tg := NewTelegram("token", "chat-1")
	tg.Client = &http.Client{Transport: stub}
	tg.backoff = 0

	err := tg.SendText("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
	assert.Equal(t, 3, stub.requests)
}
