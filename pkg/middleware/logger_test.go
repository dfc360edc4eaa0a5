package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func doLoggedRequest(t *testing.T, method, path string, handler http.HandlerFunc) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	wrapped := Logger(zerolog.New(&buf))(handler)

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not one JSON line: %v", err)
	}
	return entry
}

func TestLoggerRecordsRequestLine(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		status     int
		wantStatus float64
	}{
		{"status endpoint", http.MethodGet, "/status", http.StatusOK, 200},
		{"reconnect action", http.MethodPost, "/reconnect", http.StatusAccepted, 202},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := doLoggedRequest(t, tt.method, tt.path, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			if entry["method"] != tt.method {
				t.Errorf("method = %v, want %s", entry["method"], tt.method)
			}
			if entry["path"] != tt.path {
				t.Errorf("path = %v, want %s", entry["path"], tt.path)
			}
			if entry["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %v", entry["status"], tt.wantStatus)
			}
			if entry["message"] != "request completed" {
				t.Errorf("unexpected message %v", entry["message"])
			}
		})
	}
}

func TestLoggerDefaultsToOKWithoutExplicitWriteHeader(t *testing.T) {
	entry := doLoggedRequest(t, http.MethodGet, "/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if entry["status"] != float64(200) {
		t.Errorf("implicit status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration"]; !ok {
		t.Error("expected a duration field in the request line")
	}
}
