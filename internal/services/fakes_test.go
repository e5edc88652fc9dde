package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/platform"
	"github.com/tbourn/go-relay-bridge/internal/repo"
)

// call is one recorded remote call.
type call struct {
	Endpoint string
	Method   string
	Params   platform.Params
}

// fakeClient answers remote calls from a handler and records them.
type fakeClient struct {
	mu      sync.Mutex
	calls   []call
	handler func(endpoint string, params platform.Params) (platform.Response, error)
}

func (f *fakeClient) Call(_ context.Context, endpoint, method string, params platform.Params) (platform.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Endpoint: endpoint, Method: method, Params: params})
	f.mu.Unlock()
	if f.handler == nil {
		return platform.NewResponse(`{"id":"remote-1"}`), nil
	}
	return f.handler(endpoint, params)
}

func (f *fakeClient) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Endpoint
	}
	return out
}

// legacyClient grants the listed permissions and answers publishes.
func legacyClient(granted ...string) *fakeClient {
	set := map[string]bool{}
	for _, g := range granted {
		set[g] = true
	}
	return &fakeClient{handler: func(endpoint string, params platform.Params) (platform.Response, error) {
		switch endpoint {
		case platform.MethodHasAppPermission:
			if set[params["ext_perm"].(string)] {
				return platform.NewResponse(`1`), nil
			}
			return platform.NewResponse(`0`), nil
		case platform.MethodStreamPublish:
			return platform.NewResponse(`"42_1"`), nil
		case platform.MethodSetStatus:
			return platform.NewResponse(`true`), nil
		}
		return platform.NewResponse(`{}`), nil
	}}
}

// fakeLinks is an in-memory Link Store that counts deletions.
type fakeLinks struct {
	mu        sync.Mutex
	links     map[string]*domain.ExternalLink
	getErr    error
	deleteErr error
	gets      int
	deletes   int
}

func newFakeLinks(links ...*domain.ExternalLink) *fakeLinks {
	f := &fakeLinks{links: map[string]*domain.ExternalLink{}}
	for _, l := range links {
		f.links[l.UserID+"|"+l.Platform] = l
	}
	return f
}

func (f *fakeLinks) GetLink(_ context.Context, _ *gorm.DB, userID, platform string) (*domain.ExternalLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	l, ok := f.links[userID+"|"+platform]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinks) UpsertLink(_ context.Context, _ *gorm.DB, link *domain.ExternalLink) (*domain.ExternalLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *link
	f.links[link.UserID+"|"+link.Platform] = &cp
	return &cp, nil
}

func (f *fakeLinks) DeleteLink(_ context.Context, _ *gorm.DB, userID, platform string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	key := userID + "|" + platform
	if _, ok := f.links[key]; !ok {
		return repo.ErrNotFound
	}
	delete(f.links, key)
	return nil
}

type fakeUsers map[string]*domain.User

func (f fakeUsers) GetUser(_ context.Context, _ *gorm.DB, id string) (*domain.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

// fakeReceipts is an in-memory ReceiptRepo.
type fakeReceipts struct {
	mu   sync.Mutex
	recs map[string]*domain.DeliveryReceipt
	err  error
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{recs: map[string]*domain.DeliveryReceipt{}}
}

func (f *fakeReceipts) GetReceipt(_ context.Context, _ *gorm.DB, messageID, platform string) (*domain.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.recs[messageID+"|"+platform]; ok {
		return r, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeReceipts) CreateReceipt(_ context.Context, _ *gorm.DB, messageID, platform, path, remoteID string) (*domain.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := messageID + "|" + platform
	if _, ok := f.recs[key]; ok {
		return nil, repo.ErrDuplicate
	}
	r := &domain.DeliveryReceipt{MessageID: messageID, Platform: platform, Path: path, RemoteID: remoteID, CreatedAt: time.Now()}
	f.recs[key] = r
	return r, nil
}

// fakeNotifier records notices.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []*domain.User
	texts []string
	fail  bool
}

func (f *fakeNotifier) DisconnectNotice(user *domain.User, platformName string) (string, string, language.Tag) {
	return "removed " + platformName, "hi " + user.Nickname, language.English
}

func (f *fakeNotifier) NotifyUser(_ context.Context, user *domain.User, subject, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, user)
	f.texts = append(f.texts, subject+"|"+body)
	return !f.fail
}

// fakeNotifications is an in-memory NotificationRepo.
type fakeNotifications struct {
	rows []domain.Notification
	err  error
}

func (f *fakeNotifications) CreateNotification(_ context.Context, _ *gorm.DB, userID, kind, locale, subject, body string) (*domain.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := domain.Notification{UserID: userID, Kind: kind, Locale: locale, Subject: subject, Body: body}
	f.rows = append(f.rows, n)
	return &n, nil
}
