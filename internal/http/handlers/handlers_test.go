package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/services"
)

// ---------- stubs ----------

type stubMsgSvc struct {
	create   func(context.Context, string, string, string, []domain.Attachment) (*domain.Message, *domain.RelayJob, error)
	get      func(context.Context, string) (*domain.Message, error)
	listJobs func(context.Context, string, int, int) ([]domain.RelayJob, int64, error)
}

func (s stubMsgSvc) Create(ctx context.Context, a, c, src string, atts []domain.Attachment) (*domain.Message, *domain.RelayJob, error) {
	if s.create != nil {
		return s.create(ctx, a, c, src, atts)
	}
	return &domain.Message{ID: "m", AuthorID: a, Content: c, Source: src}, nil, nil
}

func (s stubMsgSvc) Get(ctx context.Context, id string) (*domain.Message, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &domain.Message{ID: id}, nil
}

func (s stubMsgSvc) ListJobs(ctx context.Context, st string, p, ps int) ([]domain.RelayJob, int64, error) {
	if s.listJobs != nil {
		return s.listJobs(ctx, st, p, ps)
	}
	return nil, 0, nil
}

type stubLinkSvc struct {
	get        func(context.Context, string, string) (*domain.ExternalLink, error)
	upsert     func(context.Context, string, string, string, string, int) (*domain.ExternalLink, error)
	disconnect func(context.Context, string, string) error
}

func (s stubLinkSvc) Get(ctx context.Context, u, p string) (*domain.ExternalLink, error) {
	if s.get != nil {
		return s.get(ctx, u, p)
	}
	return &domain.ExternalLink{UserID: u, Platform: p}, nil
}

func (s stubLinkSvc) Upsert(ctx context.Context, u, p, r, cr string, f int) (*domain.ExternalLink, error) {
	if s.upsert != nil {
		return s.upsert(ctx, u, p, r, cr, f)
	}
	return &domain.ExternalLink{UserID: u, Platform: p, RemoteID: r, SyncFlags: f}, nil
}

func (s stubLinkSvc) Disconnect(ctx context.Context, u, p string) error {
	if s.disconnect != nil {
		return s.disconnect(ctx, u, p)
	}
	return nil
}

type stubRelayer struct {
	out  domain.DeliveryOutcome
	seen []string
}

func (r *stubRelayer) Relay(_ context.Context, m *domain.Message) domain.DeliveryOutcome {
	r.seen = append(r.seen, m.ID)
	return r.out
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/messages", h.CreateMessage)
	r.GET("/messages/:id", h.GetMessage)
	r.POST("/messages/:id/relay", h.RelayMessage)
	r.GET("/links/:platform", h.GetLink)
	r.PUT("/links/:platform", h.PutLink)
	r.DELETE("/links/:platform", h.DeleteLink)
	r.GET("/jobs", h.ListJobs)
	return r
}

func do(r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return er.Code
}

// ---------- helpers ----------

func Test_userID_Sources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userID(c); got != "" {
		t.Fatalf("expected empty user, got %q", got)
	}
	c.Request.Header.Set("X-User-ID", "  bob ")
	if got := userID(c); got != "bob" {
		t.Fatalf("header user = %q", got)
	}
	c.Set("userID", "alice")
	if got := userID(c); got != "alice" {
		t.Fatalf("context user = %q", got)
	}
}

func Test_clampPagination_And_newPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		q        string
		page, ps int
	}{
		{"", 1, 20},
		{"?page=0&page_size=0", 1, 1},
		{"?page=3&page_size=500", 3, 100},
		{"?page=x&page_size=y", 1, 20},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/jobs"+tc.q, nil)
		p, ps := clampPagination(c)
		if p != tc.page || ps != tc.ps {
			t.Fatalf("%q: got (%d,%d) want (%d,%d)", tc.q, p, ps, tc.page, tc.ps)
		}
	}

	pg := newPagination(2, 10, 25)
	if pg.TotalPages != 3 || !pg.HasNext {
		t.Fatalf("unexpected pagination: %+v", pg)
	}
	pg = newPagination(3, 10, 25)
	if pg.HasNext {
		t.Fatalf("last page must not have next: %+v", pg)
	}
}

func Test_sanitizeContent(t *testing.T) {
	got := sanitizeContent("  a\r\nb\r\n\r\n\r\n\r\nc \r")
	if got != "a\nb\n\nc" {
		t.Fatalf("sanitizeContent = %q", got)
	}
}

// ---------- messages ----------

func TestCreateMessage(t *testing.T) {
	var gotAtts []domain.Attachment
	var gotContent, gotSource string
	msgs := stubMsgSvc{
		create: func(_ context.Context, author, content, source string, atts []domain.Attachment) (*domain.Message, *domain.RelayJob, error) {
			gotContent, gotSource, gotAtts = content, source, atts
			return &domain.Message{ID: "m1", AuthorID: author, Content: content},
				&domain.RelayJob{ID: "j1", MessageID: "m1", Status: domain.JobPending}, nil
		},
	}
	r := newRouter(New(msgs, stubLinkSvc{}, &stubRelayer{}))

	w := do(r, http.MethodPost, "/messages", "u1", map[string]any{
		"content": "hello\r\nworld ",
		"source":  "web",
		"attachments": []map[string]string{
			{"mimetype": "image/png", "url": " http://x/a.png "},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotContent != "hello\nworld" || gotSource != "web" {
		t.Fatalf("content=%q source=%q", gotContent, gotSource)
	}
	if len(gotAtts) != 1 || gotAtts[0].URL != "http://x/a.png" || gotAtts[0].MimeType != "image/png" {
		t.Fatalf("unexpected attachments: %+v", gotAtts)
	}
	var resp CreateMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Message.ID != "m1" || resp.Job == nil || resp.Job.ID != "j1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateMessage_Errors(t *testing.T) {
	cases := []struct {
		name   string
		user   string
		body   any
		svcErr error
		status int
		code   string
	}{
		{"no user", "", map[string]any{"content": "x"}, nil, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"no content", "u1", map[string]any{}, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"attachment without url", "u1", map[string]any{"content": "x", "attachments": []map[string]string{{"mimetype": "image/png"}}}, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", "u1", map[string]any{"content": "x"}, services.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{"too many", "u1", map[string]any{"content": "x"}, services.ErrTooManyAttachments, http.StatusBadRequest, ErrCodeBadRequest},
		{"store", "u1", map[string]any{"content": "x"}, errors.New("db down"), http.StatusInternalServerError, ErrCodeCreateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgs := stubMsgSvc{create: func(context.Context, string, string, string, []domain.Attachment) (*domain.Message, *domain.RelayJob, error) {
				if tc.svcErr != nil {
					return nil, nil, tc.svcErr
				}
				return &domain.Message{ID: "m"}, nil, nil
			}}
			r := newRouter(New(msgs, stubLinkSvc{}, &stubRelayer{}))
			w := do(r, http.MethodPost, "/messages", tc.user, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if got := errCode(t, w); got != tc.code {
				t.Fatalf("code=%q want %q", got, tc.code)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	id := uuid.NewString()
	msgs := stubMsgSvc{get: func(_ context.Context, got string) (*domain.Message, error) {
		if got != id {
			return nil, services.ErrMessageNotFound
		}
		return &domain.Message{ID: id, Content: "hi"}, nil
	}}
	r := newRouter(New(msgs, stubLinkSvc{}, &stubRelayer{}))

	if w := do(r, http.MethodGet, "/messages/"+id, "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET existing = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/messages/"+uuid.NewString(), "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET missing = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/messages/not-a-uuid", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("GET bad id = %d", w.Code)
	}

	boom := stubMsgSvc{get: func(context.Context, string) (*domain.Message, error) { return nil, errors.New("x") }}
	r = newRouter(New(boom, stubLinkSvc{}, &stubRelayer{}))
	if w := do(r, http.MethodGet, "/messages/"+id, "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("GET store error = %d", w.Code)
	}
}

func TestRelayMessage(t *testing.T) {
	id := uuid.NewString()
	rel := &stubRelayer{out: domain.Revoked("permission denied")}
	r := newRouter(New(stubMsgSvc{}, stubLinkSvc{}, rel))

	w := do(r, http.MethodPost, "/messages/"+id+"/relay", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp RelayResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.MessageID != id || resp.Outcome.Kind != domain.OutcomeRevoked {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(rel.seen) != 1 || rel.seen[0] != id {
		t.Fatalf("relayer saw %v", rel.seen)
	}

	missing := stubMsgSvc{get: func(context.Context, string) (*domain.Message, error) { return nil, services.ErrMessageNotFound }}
	rel = &stubRelayer{}
	r = newRouter(New(missing, stubLinkSvc{}, rel))
	if w := do(r, http.MethodPost, "/messages/"+id+"/relay", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("relay missing = %d", w.Code)
	}
	if len(rel.seen) != 0 {
		t.Fatalf("relayer must not run for a missing message")
	}
	if w := do(r, http.MethodPost, "/messages/bad/relay", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("relay bad id = %d", w.Code)
	}
}

// ---------- links ----------

func TestLinks_CRUD(t *testing.T) {
	var upUser, upPlatform, upRemote, upCreds string
	var upFlags int
	links := stubLinkSvc{
		upsert: func(_ context.Context, u, p, rid, cr string, f int) (*domain.ExternalLink, error) {
			upUser, upPlatform, upRemote, upCreds, upFlags = u, p, rid, cr, f
			return &domain.ExternalLink{UserID: u, Platform: p, RemoteID: rid, Credentials: cr, SyncFlags: f}, nil
		},
	}
	r := newRouter(New(stubMsgSvc{}, links, &stubRelayer{}))

	w := do(r, http.MethodPut, "/links/Facebook", "u1", map[string]any{
		"remote_id": "1000", "credentials": "tok", "sync_flags": domain.SyncSend | domain.SyncSendReplies,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status=%d body=%s", w.Code, w.Body.String())
	}
	if upUser != "u1" || upPlatform != "Facebook" || upRemote != "1000" || upCreds != "tok" || upFlags != 5 {
		t.Fatalf("unexpected upsert args: %s %s %s %s %d", upUser, upPlatform, upRemote, upCreds, upFlags)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("tok")) {
		t.Fatalf("credentials must not be serialized: %s", w.Body.String())
	}

	if w := do(r, http.MethodGet, "/links/Facebook", "u1", nil); w.Code != http.StatusOK {
		t.Fatalf("GET = %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/links/Facebook", "u1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", w.Code)
	}
}

func TestLinks_Errors(t *testing.T) {
	links := stubLinkSvc{
		get:        func(context.Context, string, string) (*domain.ExternalLink, error) { return nil, services.ErrLinkNotFound },
		disconnect: func(context.Context, string, string) error { return services.ErrLinkNotFound },
		upsert: func(_ context.Context, _, _, _, _ string, f int) (*domain.ExternalLink, error) {
			if f > domain.SyncMask {
				return nil, services.ErrInvalidSyncFlags
			}
			return nil, errors.New("db down")
		},
	}
	r := newRouter(New(stubMsgSvc{}, links, &stubRelayer{}))

	cases := []struct {
		method, user string
		body         any
		status       int
	}{
		{http.MethodGet, "", nil, http.StatusUnauthorized},
		{http.MethodPut, "", map[string]any{"remote_id": "1"}, http.StatusUnauthorized},
		{http.MethodDelete, "", nil, http.StatusUnauthorized},
		{http.MethodGet, "u1", nil, http.StatusNotFound},
		{http.MethodDelete, "u1", nil, http.StatusNotFound},
		{http.MethodPut, "u1", map[string]any{}, http.StatusBadRequest},
		{http.MethodPut, "u1", map[string]any{"remote_id": "1", "sync_flags": 64}, http.StatusBadRequest},
		{http.MethodPut, "u1", map[string]any{"remote_id": "1"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := do(r, tc.method, "/links/Facebook", tc.user, tc.body)
		if w.Code != tc.status {
			t.Fatalf("%s user=%q body=%v: status=%d want %d", tc.method, tc.user, tc.body, w.Code, tc.status)
		}
	}
}

// ---------- jobs ----------

func TestListJobs(t *testing.T) {
	var gotStatus string
	var gotPage, gotSize int
	msgs := stubMsgSvc{listJobs: func(_ context.Context, st string, p, ps int) ([]domain.RelayJob, int64, error) {
		gotStatus, gotPage, gotSize = st, p, ps
		if st == "bogus" {
			return nil, 0, services.ErrInvalidStatus
		}
		if st == domain.JobFailed {
			return nil, 0, errors.New("db down")
		}
		return []domain.RelayJob{{ID: "j1"}, {ID: "j2"}}, 5, nil
	}}
	r := newRouter(New(msgs, stubLinkSvc{}, &stubRelayer{}))

	w := do(r, http.MethodGet, "/jobs?status=pending&page=2&page_size=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotStatus != "pending" || gotPage != 2 || gotSize != 2 {
		t.Fatalf("args: %q %d %d", gotStatus, gotPage, gotSize)
	}
	var resp ListJobsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Jobs) != 2 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if w := do(r, http.MethodGet, "/jobs?status=bogus", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/jobs?status=failed", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("store error = %d", w.Code)
	}
}

func TestListJobs_EmptyIsArray(t *testing.T) {
	r := newRouter(New(stubMsgSvc{}, stubLinkSvc{}, &stubRelayer{}))
	w := do(r, http.MethodGet, "/jobs", "", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"jobs":[]`)) {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}
