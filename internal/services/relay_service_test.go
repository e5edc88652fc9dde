package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-relay-bridge/internal/config"
	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/platform"
)

const testPlatform = "Facebook"

type relayFixture struct {
	svc      *RelayService
	client   *fakeClient
	links    *fakeLinks
	receipts *fakeReceipts
	notifier *fakeNotifier
	logs     *strings.Builder
}

func newRelayFixture(link *domain.ExternalLink, client *fakeClient) *relayFixture {
	f := &relayFixture{
		client:   client,
		receipts: newFakeReceipts(),
		notifier: &fakeNotifier{},
		logs:     &strings.Builder{},
	}
	if link != nil {
		f.links = newFakeLinks(link)
	} else {
		f.links = newFakeLinks()
	}
	f.svc = &RelayService{
		Links:    f.links,
		Users:    fakeUsers{"u1": {ID: "u1", Nickname: "alice", Language: "en"}},
		Receipts: f.receipts,
		Client:   client,
		Notifier: f.notifier,
		Platform: testPlatform,
		Log:      zerolog.New(&syncWriter{b: f.logs}),
	}
	return f
}

type syncWriter struct {
	mu sync.Mutex
	b  *strings.Builder
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func modernLink() *domain.ExternalLink {
	return &domain.ExternalLink{UserID: "u1", Platform: testPlatform, RemoteID: "42", Credentials: "tok", SyncFlags: domain.SyncSend}
}

func legacyLink() *domain.ExternalLink {
	return &domain.ExternalLink{UserID: "u1", Platform: testPlatform, RemoteID: "42", SyncFlags: domain.SyncSend}
}

func msg(content string) *domain.Message {
	return &domain.Message{ID: "m1", AuthorID: "u1", Content: content, Source: "web"}
}

func failing(err error) *fakeClient {
	return &fakeClient{handler: func(string, platform.Params) (platform.Response, error) {
		return platform.Response{}, err
	}}
}

func TestRelay_NoLinkIsSkipped(t *testing.T) {
	f := newRelayFixture(nil, &fakeClient{})
	for i := 0; i < 2; i++ {
		out := f.svc.Relay(context.Background(), msg("hello"))
		if out.Kind != domain.OutcomeDelivered || !out.Skipped {
			t.Fatalf("relay %d: expected skipped outcome, got %+v", i, out)
		}
	}
	if len(f.client.calls) != 0 {
		t.Fatalf("no remote calls expected, got %v", f.client.endpoints())
	}
	if f.links.deletes != 0 || len(f.notifier.sent) != 0 {
		t.Fatalf("no deletion or notice expected, got deletes=%d notices=%d", f.links.deletes, len(f.notifier.sent))
	}
}

func TestRelay_NilMessage(t *testing.T) {
	f := newRelayFixture(modernLink(), &fakeClient{})
	out := f.svc.Relay(context.Background(), nil)
	if out.Kind != domain.OutcomePermanentFailure {
		t.Fatalf("expected permanent failure, got %+v", out)
	}
	if len(f.client.calls) != 0 || f.links.gets != 0 {
		t.Fatalf("nothing should be looked up or sent")
	}
}

func TestRelay_IneligibleMessagesMakeNoCalls(t *testing.T) {
	cases := []struct {
		name  string
		msg   *domain.Message
		flags int
	}{
		{"origin loop", &domain.Message{ID: "m1", AuthorID: "u1", Content: "hi", Source: testPlatform}, domain.SyncSend | domain.SyncSendReplies},
		{"send bit off", msg("hi"), 0},
		{"reply not wanted", msg("@bob hi"), domain.SyncSend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := modernLink()
			l.SyncFlags = tc.flags
			f := newRelayFixture(l, &fakeClient{})
			out := f.svc.Relay(context.Background(), tc.msg)
			if !out.Skipped || out.Kind != domain.OutcomeDelivered {
				t.Fatalf("expected skip, got %+v", out)
			}
			if len(f.client.calls) != 0 {
				t.Fatalf("no remote calls expected, got %v", f.client.endpoints())
			}
		})
	}
}

func TestRelay_ReplyWithReplyBit(t *testing.T) {
	l := modernLink()
	l.SyncFlags = domain.SyncSend | domain.SyncSendReplies
	f := newRelayFixture(l, &fakeClient{})
	out := f.svc.Relay(context.Background(), msg("@bob hi"))
	if out.Kind != domain.OutcomeDelivered || out.Skipped {
		t.Fatalf("expected delivery, got %+v", out)
	}
}

func TestRelay_ModernDelivered_WritesReceipt(t *testing.T) {
	f := newRelayFixture(modernLink(), &fakeClient{})
	out := f.svc.Relay(context.Background(), msg("hello"))
	if out.Kind != domain.OutcomeDelivered || out.Skipped || out.RemoteID != "remote-1" || out.Path != "modern" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(f.client.calls) != 1 {
		t.Fatalf("expected one publish call, got %v", f.client.endpoints())
	}
	if _, ok := f.receipts.recs["m1|"+testPlatform]; !ok {
		t.Fatalf("expected delivery receipt")
	}

	// Redelivery of the same message is a no-op.
	again := f.svc.Relay(context.Background(), msg("hello"))
	if !again.Skipped {
		t.Fatalf("expected skip on redelivery, got %+v", again)
	}
	if len(f.client.calls) != 1 {
		t.Fatalf("redelivery must not publish again, got %v", f.client.endpoints())
	}
}

func TestRelay_LegacyDelivered(t *testing.T) {
	f := newRelayFixture(legacyLink(), legacyClient(PermPublishStream))
	out := f.svc.Relay(context.Background(), msg("hello"))
	if out.Kind != domain.OutcomeDelivered || out.Path != "legacy" || out.RemoteID != "42_1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRelay_LegacyWithoutPermissionIsSkipped(t *testing.T) {
	f := newRelayFixture(legacyLink(), legacyClient())
	out := f.svc.Relay(context.Background(), msg("hello"))
	if !out.Skipped || out.Kind != domain.OutcomeDelivered {
		t.Fatalf("expected skip without permission, got %+v", out)
	}
	if len(f.receipts.recs) != 0 {
		t.Fatalf("no receipt for unsent messages")
	}
	if f.links.deletes != 0 {
		t.Fatalf("missing permission must not disconnect")
	}
}

func TestRelay_RevokeCodes(t *testing.T) {
	for _, err := range []error{
		&platform.PlatformError{Code: 200, Message: "Permissions error"},
		&platform.PlatformError{Code: 250, Message: "Updating status requires the extended permission status_update"},
		&platform.PlatformError{Code: 0, Message: "(#200) The user hasn't authorized the application"},
	} {
		f := newRelayFixture(modernLink(), failing(err))
		out := f.svc.Relay(context.Background(), msg("hello"))
		if out.Kind != domain.OutcomeRevoked {
			t.Fatalf("%v: expected revoked, got %+v", err, out)
		}
		if f.links.deletes != 1 {
			t.Fatalf("%v: expected exactly one deletion, got %d", err, f.links.deletes)
		}
		if len(f.notifier.sent) != 1 || f.notifier.sent[0].Nickname != "alice" {
			t.Fatalf("%v: expected one notice to alice, got %+v", err, f.notifier.sent)
		}
		if f.links.gets != 1 {
			t.Fatalf("link must be read once, got %d", f.links.gets)
		}
		if _, getErr := f.links.GetLink(context.Background(), nil, "u1", testPlatform); getErr == nil {
			t.Fatalf("link should be gone")
		}

		// Redelivery after the link is gone is a no-op.
		again := f.svc.Relay(context.Background(), msg("hello"))
		if !again.Skipped {
			t.Fatalf("%v: expected skip after revoke, got %+v", err, again)
		}
		if f.links.deletes != 1 || len(f.notifier.sent) != 1 || len(f.client.calls) != 1 {
			t.Fatalf("%v: redelivery must not delete, notify or call: deletes=%d notices=%d calls=%d",
				err, f.links.deletes, len(f.notifier.sent), len(f.client.calls))
		}
	}
}

func TestRelay_NotificationFailureKeepsRelayFields(t *testing.T) {
	f := newRelayFixture(modernLink(), failing(&platform.PlatformError{Code: 200, Message: "Permissions error"}))
	f.svc.Notifier = &NotificationService{Repo: &fakeNotifications{err: errors.New("db down")}, SiteName: "Relay", Log: zerolog.Nop()}

	if out := f.svc.Relay(context.Background(), msg("hello")); out.Kind != domain.OutcomeRevoked {
		t.Fatalf("expected revoked, got %+v", out)
	}
	logs := f.logs.String()
	var record string
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, "could not store notification") {
			record = line
		}
	}
	if record == "" {
		t.Fatalf("expected notification failure record, got %s", logs)
	}
	for _, want := range []string{`"message_id":"m1"`, `"remote_id":"42"`, `"user_id":"u1"`} {
		if !strings.Contains(record, want) {
			t.Fatalf("record %s lacks %s", record, want)
		}
	}
}

func TestRelay_RevokeSideEffectFailuresDoNotChangeOutcome(t *testing.T) {
	f := newRelayFixture(legacyLink(), failing(&platform.PlatformError{Code: 250}))
	f.links.deleteErr = errors.New("db down")
	f.notifier.fail = true

	out := f.svc.Relay(context.Background(), msg("hello"))
	if out.Kind != domain.OutcomeRevoked {
		t.Fatalf("expected revoked, got %+v", out)
	}
	if f.links.deletes != 1 || len(f.notifier.sent) != 1 {
		t.Fatalf("expected one delete and one notice attempt: deletes=%d notices=%d", f.links.deletes, len(f.notifier.sent))
	}
	logs := f.logs.String()
	if !strings.Contains(logs, "could not remove link") || !strings.Contains(logs, "could not notify user") {
		t.Fatalf("expected failure logs, got %s", logs)
	}
}

func TestRelay_RevokeUsesDefaultProfileWhenUserUnknown(t *testing.T) {
	l := modernLink()
	l.UserID = "ghost"
	f := newRelayFixture(l, failing(&platform.PlatformError{Code: 200}))
	m := msg("hello")
	m.AuthorID = "ghost"
	f.svc.Relay(context.Background(), m)
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].ID != "ghost" {
		t.Fatalf("expected notice to ghost, got %+v", f.notifier.sent)
	}
}

func TestRelay_DequeueAndRetryCodes(t *testing.T) {
	cases := []struct {
		name   string
		policy string
		err    error
		want   domain.OutcomeKind
	}{
		{"invalid parameter", "", &platform.PlatformError{Code: 100, Message: "bad param"}, domain.OutcomePermanentFailure},
		{"rate limit dequeue", config.RateLimitDequeue, &platform.PlatformError{Code: 341}, domain.OutcomePermanentFailure},
		{"rate limit retry", config.RateLimitRetry, &platform.PlatformError{Code: 341}, domain.OutcomeTransientFailure},
		{"unknown code", "", &platform.PlatformError{Code: 1, Message: "unknown"}, domain.OutcomePermanentFailure},
		{"transport", "", &platform.TransportError{Op: "feed", Err: context.DeadlineExceeded}, domain.OutcomeTransientFailure},
		{"unparseable wrapper", "", &platform.PlatformError{Code: 0, Message: "weird"}, domain.OutcomeTransientFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRelayFixture(modernLink(), failing(tc.err))
			f.svc.Classifier = Classifier{RateLimitPolicy: tc.policy}
			out := f.svc.Relay(context.Background(), msg("hello"))
			if out.Kind != tc.want {
				t.Fatalf("got %+v; want %s", out, tc.want)
			}
			if out.Reason == "" {
				t.Fatalf("failures must carry a reason")
			}
			if f.links.deletes != 0 || len(f.notifier.sent) != 0 {
				t.Fatalf("non-revoke verdicts must not disconnect")
			}
			if len(f.receipts.recs) != 0 {
				t.Fatalf("failed deliveries leave no receipt")
			}
			if !strings.Contains(f.logs.String(), `"verdict"`) {
				t.Fatalf("expected a structured classification log, got %s", f.logs.String())
			}
		})
	}
}

func TestRelay_StoreFailuresAreTransient(t *testing.T) {
	f := newRelayFixture(modernLink(), &fakeClient{})
	f.links.getErr = errors.New("db down")
	if out := f.svc.Relay(context.Background(), msg("hello")); out.Kind != domain.OutcomeTransientFailure {
		t.Fatalf("link lookup failure: got %+v", out)
	}

	f = newRelayFixture(modernLink(), &fakeClient{})
	f.receipts.err = errors.New("db down")
	if out := f.svc.Relay(context.Background(), msg("hello")); out.Kind != domain.OutcomeTransientFailure {
		t.Fatalf("receipt lookup failure: got %+v", out)
	}
	if len(f.client.calls) != 0 {
		t.Fatalf("must not publish when receipts are unavailable")
	}
}

func TestRelay_WithoutReceipts(t *testing.T) {
	f := newRelayFixture(modernLink(), &fakeClient{})
	f.svc.Receipts = nil
	f.svc.Relay(context.Background(), msg("hello"))
	f.svc.Relay(context.Background(), msg("hello"))
	if len(f.client.calls) != 2 {
		t.Fatalf("without receipts every relay publishes, got %d calls", len(f.client.calls))
	}
}

func TestRelay_PanicBecomesPermanentFailure(t *testing.T) {
	c := &fakeClient{handler: func(string, platform.Params) (platform.Response, error) {
		panic("boom")
	}}
	f := newRelayFixture(modernLink(), c)
	out := f.svc.Relay(context.Background(), msg("hello"))
	if out.Kind != domain.OutcomePermanentFailure || !strings.Contains(out.Reason, "boom") {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestRelay_Metrics(t *testing.T) {
	delivered := relayOutcomes.WithLabelValues(testPlatform, "delivered")
	skipped := relayOutcomes.WithLabelValues(testPlatform, "skipped")
	calls := relayRemoteCalls.WithLabelValues(testPlatform, "modern", "feed")
	baseD, baseS, baseC := testutil.ToFloat64(delivered), testutil.ToFloat64(skipped), testutil.ToFloat64(calls)

	f := newRelayFixture(modernLink(), &fakeClient{})
	f.svc.Relay(context.Background(), msg("hello"))
	f.svc.Relay(context.Background(), msg("hello")) // skipped by receipt

	if got := testutil.ToFloat64(delivered); got != baseD+1 {
		t.Fatalf("delivered = %v; want %v", got, baseD+1)
	}
	if got := testutil.ToFloat64(skipped); got != baseS+1 {
		t.Fatalf("skipped = %v; want %v", got, baseS+1)
	}
	if got := testutil.ToFloat64(calls); got != baseC+1 {
		t.Fatalf("remote calls = %v; want %v", got, baseC+1)
	}
}

func TestRelay_ConcurrentRelaysOfDifferentMessages(t *testing.T) {
	f := newRelayFixture(modernLink(), &fakeClient{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := msg("hello")
			m.ID = string(rune('a' + i))
			if out := f.svc.Relay(context.Background(), m); out.Kind != domain.OutcomeDelivered {
				t.Errorf("relay %d: %+v", i, out)
			}
		}(i)
	}
	wg.Wait()
	if len(f.client.calls) != 8 || len(f.receipts.recs) != 8 {
		t.Fatalf("calls=%d receipts=%d; want 8 each", len(f.client.calls), len(f.receipts.recs))
	}
}
