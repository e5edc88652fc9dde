package platform

import (
	"errors"
	"fmt"
	"testing"
)

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantOK   bool
	}{
		{"direct code", &PlatformError{Code: 200, Message: "revoked"}, 200, true},
		{"wrapped platform error", fmt.Errorf("publish: %w", &PlatformError{Code: 100, Message: "bad"}), 100, true},
		{"code zero with prefix", &PlatformError{Code: 0, Message: "(#341) Feed action request limit reached"}, 341, true},
		{"code zero prefix not at start", &PlatformError{Code: 0, Message: "oops (#341)"}, 0, false},
		{"code zero no prefix", &PlatformError{Code: 0, Message: "Unknown failure"}, 0, false},
		{"transport", &TransportError{Op: "feed", Err: errors.New("connection reset")}, 0, false},
		{"foreign", errors.New("boom"), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, ok := ExtractCode(tc.err)
			if code != tc.wantCode || ok != tc.wantOK {
				t.Fatalf("ExtractCode = (%d, %v); want (%d, %v)", code, ok, tc.wantCode, tc.wantOK)
			}
		})
	}
}

func TestCode_NoCode(t *testing.T) {
	if _, err := Code(errors.New("x")); !errors.Is(err, ErrNoCode) {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
	if c, err := Code(&PlatformError{Code: 250}); err != nil || c != 250 {
		t.Fatalf("Code = (%d, %v)", c, err)
	}
}

func TestErrorStrings(t *testing.T) {
	pe := &PlatformError{Code: 200, Message: "denied"}
	if pe.Error() != "platform error 200: denied" {
		t.Fatalf("unexpected PlatformError text: %q", pe.Error())
	}
	base := errors.New("reset")
	te := &TransportError{Op: "feed", Status: 502, Err: base}
	if !errors.Is(te, base) {
		t.Fatalf("TransportError must unwrap")
	}
	if te.Error() != "platform feed: http 502: reset" {
		t.Fatalf("unexpected TransportError text: %q", te.Error())
	}
}
