package typex

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testLogger(), opts...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user/qrcode", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("login_type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		writeJSON(w, map[string]any{"code": 0, "data": "qr_code_id=abc123&expire=120"})
	})

	hs, err := c.StartLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", hs.ID)
	assert.Equal(t, "qr_code_id=abc123&expire=120", hs.Payload)
}

func TestStartLoginPayloadAsURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "data": "https://typex.test/login?qr_code_id=xyz"})
	})
	hs, err := c.StartLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz", hs.ID)
}

func TestStartLoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			writeJSON(w, map[string]any{"code": 0, "data": "qr_code_id=a"})
		}},
		{"non-zero code", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 500, "msg": "busy"})
		}},
		{"empty data", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": ""})
		}},
		{"no handshake id", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": "foo=bar"})
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.StartLogin(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
		})
	}
}

func TestStartLoginTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, testLogger()).StartLogin(context.Background())
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestCheckLoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/open/qrcode/check_auth", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc", body["qr_code_id"])

		w.Header().Add("Set-Cookie", "lang=en; Path=/")
		w.Header().Add("Set-Cookie", "sessionid=s3cr3t; Path=/; HttpOnly")
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"user_id": 4242}})
	})

	ok, err := c.CheckLogin(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sessionid=s3cr3t", c.Token())
	assert.Equal(t, "4242", c.UserID())
}

func TestCheckLoginPendingAndOtherCodes(t *testing.T) {
	for _, code := range []int{CodeLoginPending, 403, -1} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": code, "msg": "no"})
		})
		ok, err := c.CheckLogin(context.Background(), "abc")
		require.NoError(t, err, "code %d", code)
		assert.False(t, ok, "code %d", code)
		assert.Empty(t, c.UserID())
	}
}

func TestCheckLoginMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("nope"))
	})
	ok, err := c.CheckLogin(context.Background(), "abc")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestSendUnauthenticated(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	_, err := c.Send(context.Background(), "hi", domain.MessageTypeText)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Zero(t, calls.Load())
}

func TestSendText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/open/claw/send_message", r.URL.Path)
		assert.Equal(t, "sessionid=t", r.Header.Get("Cookie"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"content":{"text":"hello"},"msg_type":0}`, string(body))
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"message_id": "m-1"}})
	}, WithToken("sessionid=t"))

	res, err := c.Send(context.Background(), "hello", domain.MessageTypeText)
	require.NoError(t, err)
	assert.Equal(t, "m-1", res.MessageID)
}

func TestSendStructuredContent(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
			MsgType int `json:"msg_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = body.Content.Text
		assert.Equal(t, 8, body.MsgType)
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"message_id": "m"}})
	}, WithToken("sessionid=t"))

	_, err := c.Send(context.Background(), map[string]string{"title": "T"}, domain.MessageTypeRichText)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"T"}`, got)
}

func TestStringifyFallsBack(t *testing.T) {
	assert.Equal(t, "plain", stringify("plain"))
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, `[1,2]`, stringify([]int{1, 2}))
	ch := make(chan int)
	assert.NotEmpty(t, stringify(ch), "unencodable content still produces text")
}

func TestSendRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 40001, "message": "bad content"})
	}, WithToken("sessionid=t"))

	_, err := c.Send(context.Background(), "x", domain.MessageTypeText)
	require.Error(t, err)
	var sre *domain.SendRejectedError
	require.ErrorAs(t, err, &sre)
	assert.Equal(t, 40001, sre.Code)
	assert.Equal(t, "bad content", sre.Message)
	assert.Contains(t, err.Error(), "[40001] bad content")
}

func TestSendFallbackMessageID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0})
	}, WithToken("sessionid=t"))

	res, err := c.Send(context.Background(), "x", domain.MessageTypeText)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "msg_"), res.MessageID)
	assert.Len(t, res.MessageID, len("msg_")+26)
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, testLogger(), WithToken("sessionid=t"))
	_, err := c.Send(context.Background(), "x", domain.MessageTypeText)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestSendBreakerOpensOnTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, testLogger(),
		WithToken("sessionid=t"),
		WithBreaker(config.BreakerConfig{MaxFailures: 2, Timeout: time.Minute}),
	)
	for i := 0; i < 2; i++ {
		_, err := c.Send(context.Background(), "x", domain.MessageTypeText)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.Send(context.Background(), "x", domain.MessageTypeText)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestSendRejectionsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 1, "message": "no"})
	}, WithToken("sessionid=t"), WithBreaker(config.BreakerConfig{MaxFailures: 1}))

	for i := 0; i < 3; i++ {
		_, err := c.Send(context.Background(), "x", domain.MessageTypeText)
		assert.ErrorIs(t, err, domain.ErrSendRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestSendRateLimitHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"message_id": "m"}})
	}, WithToken("sessionid=t"), WithSendRate(0.001, 1))

	_, err := c.Send(context.Background(), "first", domain.MessageTypeText)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, "second", domain.MessageTypeText)
	require.Error(t, err)
}

func TestFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/open/claw/message", r.URL.Path)
		assert.Equal(t, "sessionid=t", r.Header.Get("Cookie"))
		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(7), body["pos"])
		writeJSON(w, map[string]any{"code": 0, "data": []any{
			map[string]any{"message_id": "m1", "chat_id": "c1", "content": map[string]any{"text": "a"}, "position": 8},
			map[string]any{"message_id": "m2", "chat_id": 5},
			map[string]any{"message_id": "m3", "chat_id": "c1", "content": map[string]any{"text": "b"}, "position": 9},
		}})
	}, WithToken("sessionid=t"))

	res := c.Fetch(context.Background(), 7)
	assert.Equal(t, domain.FetchOK, res.Status)
	assert.False(t, res.Status.Degraded())
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "m1", res.Entries[0].MessageID)
	assert.Equal(t, int64(9), *res.Entries[1].Position)
}

func TestFetchNeverFails(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		baseURL string
		token   string
		want    domain.FetchStatus
	}{
		{name: "no token", handler: func(http.ResponseWriter, *http.Request) { t.Error("unexpected request") }, want: domain.FetchUnauthenticated},
		{name: "transport", baseURL: closedURL, token: "sessionid=t", want: domain.FetchTransport},
		{name: "server error", token: "sessionid=t", want: domain.FetchTransport, handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			writeJSON(w, map[string]any{"code": 0, "data": []any{}})
		}},
		{name: "non-zero code", token: "sessionid=t", want: domain.FetchRejected, handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 401, "message": "expired"})
		}},
		{name: "object data", token: "sessionid=t", want: domain.FetchMalformed, handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"items": []any{}}})
		}},
		{name: "null data", token: "sessionid=t", want: domain.FetchMalformed, handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": nil})
		}},
		{name: "garbage body", token: "sessionid=t", want: domain.FetchMalformed, handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{{{"))
		}},
		{name: "empty array", token: "sessionid=t", want: domain.FetchEmpty, handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": []any{}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c *Client
			if tt.baseURL != "" {
				c = NewClient(tt.baseURL, testLogger(), WithToken(tt.token))
			} else {
				c = newTestClient(t, tt.handler, WithToken(tt.token))
			}

			res := c.Fetch(context.Background(), 0)
			assert.Equal(t, tt.want, res.Status)
			assert.NotNil(t, res.Entries)
			assert.Empty(t, res.Entries)
			assert.Empty(t, c.FetchMessages(context.Background(), 0))
			if tt.want.Degraded() && tt.want != domain.FetchUnauthenticated {
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":12345678901234,"c":null}`), &v))
	assert.Equal(t, flexString("x"), v.A)
	assert.Equal(t, flexString("12345678901234"), v.B)
	assert.Equal(t, flexString(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":{}}`), &v))
}
