package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tbourn/go-relay-bridge/internal/config"
	"github.com/tbourn/go-relay-bridge/internal/platform"
)

func TestClassifier_Classify(t *testing.T) {
	cases := []struct {
		name    string
		policy  string
		err     error
		verdict Verdict
		code    int
	}{
		{"invalid parameter", "", &platform.PlatformError{Code: 100, Message: "bad"}, VerdictDequeue, 100},
		{"permission revoked", "", &platform.PlatformError{Code: 200, Message: "denied"}, VerdictRevoke, 200},
		{"extended permission", "", &platform.PlatformError{Code: 250, Message: "status_update"}, VerdictRevoke, 250},
		{"rate limit default", "", &platform.PlatformError{Code: 341, Message: "limit"}, VerdictDequeue, 341},
		{"rate limit dequeue", config.RateLimitDequeue, &platform.PlatformError{Code: 341}, VerdictDequeue, 341},
		{"rate limit retry", config.RateLimitRetry, &platform.PlatformError{Code: 341}, VerdictRetry, 341},
		{"unknown code", "", &platform.PlatformError{Code: 506, Message: "dup"}, VerdictDequeue, 506},
		{"wrapper code reparsed", "", &platform.PlatformError{Code: 0, Message: "(#200) The user hasn't authorized"}, VerdictRevoke, 200},
		{"wrapper code reparsed 341", config.RateLimitRetry, &platform.PlatformError{Code: 0, Message: "(#341) limit"}, VerdictRetry, 341},
		{"wrapper without code", "", &platform.PlatformError{Code: 0, Message: "something"}, VerdictRetry, 0},
		{"wrapped in fmt", "", fmt.Errorf("publish: %w", &platform.PlatformError{Code: 250}), VerdictRevoke, 250},
		{"transport", "", &platform.TransportError{Op: "feed", Err: errors.New("reset")}, VerdictRetry, 0},
		{"deadline", "", context.DeadlineExceeded, VerdictRetry, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classifier{RateLimitPolicy: tc.policy}.Classify(tc.err)
			if got.Verdict != tc.verdict || got.Code != tc.code {
				t.Fatalf("Classify = %+v; want verdict=%s code=%d", got, tc.verdict, tc.code)
			}
			if got.HasCode != (tc.code != 0) {
				t.Fatalf("HasCode = %v for code %d", got.HasCode, tc.code)
			}
		})
	}
}

func TestVerdict_String(t *testing.T) {
	for v, want := range map[Verdict]string{
		VerdictRetry: "retry", VerdictDequeue: "dequeue", VerdictRevoke: "revoke", Verdict(9): "unknown",
	} {
		if v.String() != want {
			t.Fatalf("%d.String() = %q; want %q", v, v.String(), want)
		}
	}
}
