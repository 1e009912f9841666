package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		detail    string
		transient bool
	}{
		{"timeout", 408, "", true},
		{"conflict", 409, "", true},
		{"too early", 425, "", true},
		{"rate limited", 429, "slow down", true},
		{"server error", 500, "", true},
		{"bad gateway", 502, "", true},
		{"unavailable", 503, "", true},
		{"unauthorized", 401, "invalid key", false},
		{"forbidden", 403, "", false},
		{"not found", 404, "", false},
		{"plain bad request", 400, "missing field", false},
		{"bad request with transient marker", 400, "Provider returned error", true},
		{"bad request no providers", 400, "no providers available for model", true},
		{"bad request try again", 400, "please try again later", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ErrorFromStatusCode(tt.status, tt.detail, "openrouter")
			if got := IsTransient(err); got != tt.transient {
				t.Errorf("status %d detail %q: transient = %v, want %v", tt.status, tt.detail, got, tt.transient)
			}
			var be *BackendError
			if !errors.As(err, &be) {
				t.Fatal("expected a BackendError")
			}
			if be.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, be.StatusCode)
			}
			if be.Provider != "openrouter" {
				t.Errorf("expected provider openrouter, got %q", be.Provider)
			}
		})
	}
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransientErr("openrouter", "sending request", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestIsTransientRejectsPlainErrors(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("plain errors must not be transient")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain errors are not classified fatal either")
	}
}
