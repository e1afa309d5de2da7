package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestCORSAllowList(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"allowed", "http://localhost:3000", "http://localhost:3000"},
		{"foreign", "http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/order/create", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "X-Custom")
			resp, err := env.server.Client().Do(req)
			if err != nil {
				t.Fatalf("preflight: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("preflight status = %d, want 204", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
				t.Fatalf("credentials not allowed")
			}
		})
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("actual request missing allow-origin")
	}
	if resp.Header.Get("Access-Control-Expose-Headers") == "" {
		t.Fatalf("expose headers missing")
	}
}

func TestRateLimitPerIP(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		if status, _ := env.do(t, http.MethodGet, "/health"); status != http.StatusOK {
			t.Fatalf("request %d status = %d", i, status)
		}
	}
	status, body := env.do(t, http.MethodGet, "/health")
	if status != http.StatusTooManyRequests || decodeMap(t, body)["code"] != "RATE_LIMITED" {
		t.Fatalf("third request = %d %s", status, body)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, newFakeExchange(), Options{})

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("X-Request-ID = %q", got)
	}

	resp, err = env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("no request id generated")
	}
}

func TestRecoveryAndTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	r := gin.New()
	r.Use(Recovery(log))
	r.Use(TimeoutMiddleware(20*time.Millisecond, log, "/slow-allowed"))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	deadline := func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	}
	r.GET("/bounded", deadline)
	r.GET("/slow-allowed", deadline)
	r.GET("/expires", func(c *gin.Context) {
		<-c.Request.Context().Done()
		if c.Request.Context().Err() != context.DeadlineExceeded {
			t.Errorf("ctx err = %v", c.Request.Context().Err())
		}
		c.Status(http.StatusGatewayTimeout)
	})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/panic", http.StatusInternalServerError, `{"code":"INTERNAL","message":"internal error","status":"error"}`},
		{"/bounded", http.StatusOK, `{"deadline":true}`},
		{"/slow-allowed", http.StatusOK, `{"deadline":false}`},
		{"/expires", http.StatusGatewayTimeout, ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tt.path, w.Code, tt.wantStatus)
		}
		if tt.wantBody != "" && w.Body.String() != tt.wantBody {
			t.Fatalf("%s: body = %s, want %s", tt.path, w.Body.String(), tt.wantBody)
		}
	}
}
