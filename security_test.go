package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketpulse-labs/sentiment-backend/config"
	"golang.org/x/time/rate"
)

// TestEnhancedRateLimiting tests the improved rate limiting with multiple client identifiers
func TestEnhancedRateLimiting(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(10), 5)

	// Create a mock handler
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}

	// Wrap with rate limiting middleware
	rateLimitedHandler := RateLimitMiddleware(limiter, handler)

	// Test 1: Same IP but different user agents should have different rate limits
	req1 := httptest.NewRequest("GET", "/", nil)
	req1.Header.Set("User-Agent", "Mozilla/5.0")
	req1.RemoteAddr = "192.168.1.1:12345"

	req2 := httptest.NewRequest("GET", "/", nil)
	req2.Header.Set("User-Agent", "Chrome/91.0")
	req2.RemoteAddr = "192.168.1.1:12345"

	// Both should be allowed initially
	w1 := httptest.NewRecorder()
	w2 := httptest.NewRecorder()

	rateLimitedHandler(w1, req1)
	rateLimitedHandler(w2, req2)

	if w1.Code != http.StatusOK || w2.Code != http.StatusOK {
		t.Errorf("Both requests should be allowed initially")
	}

	// Test 2: Requests with same identifiers should share rate limit
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0")
		req.RemoteAddr = "192.168.1.1:12345"

		w := httptest.NewRecorder()
		rateLimitedHandler(w, req)

		if i < 5 && w.Code != http.StatusOK {
			t.Errorf("Request %d should be allowed", i)
		}
		if i >= 5 && w.Code != http.StatusTooManyRequests {
			t.Errorf("Request %d should be rate limited", i)
		}
	}
}

// TestCORSConfiguration tests CORS behavior driven by environment configuration
func TestCORSConfiguration(t *testing.T) {
	// Set test environment
	t.Setenv("PROJECT_ID", "test-project")
	t.Setenv("ANALYSIS_BASE_URL", "https://analysis.test")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DEV_CORS_ORIGINS", "https://localhost:3000,https://127.0.0.1:3000")
	t.Setenv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")
	t.Setenv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization")

	// Build configuration from the environment without spinning up services
	appConfig := config.NewConfig()
	if err := appConfig.Validate(); err != nil {
		t.Fatalf("Failed to validate config: %v", err)
	}

	// Create a mock handler
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}

	// Wrap with CORS middleware
	corsHandler := CORSMiddleware(http.HandlerFunc(handler), appConfig)

	// Test cases
	testCases := []struct {
		name           string
		origin         string
		shouldAllow    bool
		expectedOrigin string
	}{
		{"Allowed origin", "https://localhost:3000", true, "https://localhost:3000"},
		{"Disallowed origin", "https://evil.com", false, ""},
		{"No origin header", "", false, ""},
		{"Allowed origin with different case", "https://LOCALHOST:3000", false, ""}, // Case sensitive
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			w := httptest.NewRecorder()
			corsHandler.ServeHTTP(w, req)

			originHeader := w.Header().Get("Access-Control-Allow-Origin")
			if tc.shouldAllow && originHeader != tc.expectedOrigin {
				t.Errorf("Expected origin header %s, got %s", tc.expectedOrigin, originHeader)
			}
			if !tc.shouldAllow && originHeader != "" {
				t.Errorf("Expected no origin header, got %s", originHeader)
			}

			// Check other CORS headers
			methodsHeader := w.Header().Get("Access-Control-Allow-Methods")
			if methodsHeader != "GET, POST, OPTIONS" {
				t.Errorf("Expected methods header 'GET, POST, OPTIONS', got '%s'", methodsHeader)
			}
		})
	}

	// Test OPTIONS preflight
	t.Run("Preflight request", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/", nil)
		req.Header.Set("Origin", "https://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")

		w := httptest.NewRecorder()
		corsHandler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200 for OPTIONS, got %d", w.Code)
		}
	})
}

// TestClientIdentifier tests the enhanced client identification
func TestClientIdentifier(t *testing.T) {
	testCases := []struct {
		name       string
		setupReq   func(*http.Request)
		expectSame bool
	}{
		{
			name: "Same IP and user agent",
			setupReq: func(req *http.Request) {
				req.RemoteAddr = "192.168.1.1:12345"
				req.Header.Set("User-Agent", "Mozilla/5.0")
			},
			expectSame: true,
		},
		{
			name: "Different IP, same user agent",
			setupReq: func(req *http.Request) {
				req.RemoteAddr = "192.168.1.2:12345"
				req.Header.Set("User-Agent", "Mozilla/5.0")
			},
			expectSame: false,
		},
		{
			name: "Same IP, different user agent",
			setupReq: func(req *http.Request) {
				req.RemoteAddr = "192.168.1.1:12345"
				req.Header.Set("User-Agent", "Chrome/91.0")
			},
			expectSame: false,
		},
		{
			name: "With session cookie",
			setupReq: func(req *http.Request) {
				req.RemoteAddr = "192.168.1.1:12345"
				req.Header.Set("User-Agent", "Mozilla/5.0")
				req.AddCookie(&http.Cookie{Name: "session_id", Value: "test-session-123"})
			},
			expectSame: false, // Different from previous due to session
		},
	}

	var previousID string

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			tc.setupReq(req)

			clientID := getClientIdentifier(req)

			if i > 0 {
				if tc.expectSame && clientID != previousID {
					t.Errorf("Expected same client ID, got different: %s vs %s", previousID, clientID)
				}
				if !tc.expectSame && clientID == previousID {
					t.Errorf("Expected different client ID, got same: %s", clientID)
				}
			}

			previousID = clientID

			// Verify client ID is consistent length (16 chars as per implementation)
			if len(clientID) != 16 {
				t.Errorf("Expected client ID length 16, got %d", len(clientID))
			}
		})
	}
}

// TestClientIdentifierShortAcceptLanguage verifies malformed language headers
// cannot crash identification in front of the rate limiter
func TestClientIdentifierShortAcceptLanguage(t *testing.T) {
	for _, header := range []string{"a", "", "e"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		if header != "" {
			req.Header.Set("Accept-Language", header)
		}

		clientID := getClientIdentifier(req)
		if len(clientID) != 16 {
			t.Errorf("Expected client ID length 16 for Accept-Language %q, got %d", header, len(clientID))
		}
	}
}

// TestRateLimiterCleanup tests the rate limiter cleanup functionality
func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(10), 5)

	// Add some clients
	limiter.Allow("client1")
	limiter.Allow("client2")
	limiter.Allow("client3")

	// Verify clients exist
	if len(limiter.clients) != 3 {
		t.Errorf("Expected 3 clients, got %d", len(limiter.clients))
	}

	// Manually set last seen to old time to test cleanup
	limiter.mutex.Lock()
	for _, client := range limiter.clients {
		client.lastSeen = time.Now().Add(-10 * time.Minute)
	}
	limiter.mutex.Unlock()

	// Run cleanup
	limiter.Cleanup()

	// Verify clients are cleaned up
	if len(limiter.clients) != 0 {
		t.Errorf("Expected 0 clients after cleanup, got %d", len(limiter.clients))
	}
}
