package services

import (
	"testing"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

func TestIsReply(t *testing.T) {
	cases := map[string]bool{
		"hello world":              false,
		"@bob hi":                  true,
		"hi @bob_99":               true,
		"mail me at a@b":           true,
		"@":                        false,
		"@ spaced":                 false,
		"@abcdefghijklmnop":        false, // 16 chars, no boundary after 15
		"@abcdefghijklmno end":     true,
		"price @ 5 dollars":        false,
		"@éclair is not ascii-led": false,
	}
	for in, want := range cases {
		if got := IsReply(in); got != want {
			t.Fatalf("IsReply(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestCheckEligibility(t *testing.T) {
	all := domain.SyncSend | domain.SyncSendReplies
	cases := []struct {
		name  string
		msg   domain.Message
		flags int
		want  bool
	}{
		{"plain post", domain.Message{Content: "hi", Source: "web"}, domain.SyncSend, true},
		{"origin loop", domain.Message{Content: "hi", Source: "Facebook"}, all, false},
		{"origin loop case-insensitive", domain.Message{Content: "hi", Source: "facebook"}, all, false},
		{"send bit off", domain.Message{Content: "hi", Source: "web"}, domain.SyncSendReplies, false},
		{"no flags", domain.Message{Content: "hi", Source: "web"}, 0, false},
		{"reply without reply bit", domain.Message{Content: "@bob hi", Source: "web"}, domain.SyncSend, false},
		{"reply with reply bit", domain.Message{Content: "@bob hi", Source: "web"}, all, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			link := &domain.ExternalLink{SyncFlags: tc.flags}
			ok, reason := CheckEligibility(&tc.msg, link, "Facebook")
			if ok != tc.want {
				t.Fatalf("CheckEligibility = %v (%s); want %v", ok, reason, tc.want)
			}
			if !ok && reason == "" {
				t.Fatalf("skips must carry a reason")
			}
		})
	}
}
