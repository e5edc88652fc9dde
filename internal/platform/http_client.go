package platform

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-relay-bridge/internal/config"
)

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// HTTPClient is the production Client. Graph endpoints go to GraphURL with
// the access_token parameter sent as an OAuth2 bearer header; legacy REST
// methods are signed form posts to RESTURL.
type HTTPClient struct {
	GraphURL  string
	RESTURL   string
	AppID     string
	AppSecret string

	// HTTP is the base client; its Transport is wrapped for bearer calls.
	HTTP *http.Client
	// Limiter throttles outbound calls; nil disables throttling.
	Limiter *rate.Limiter
}

// NewHTTPClient builds a client from platform settings.
func NewHTTPClient(cfg config.PlatformConfig) *HTTPClient {
	c := &HTTPClient{
		GraphURL:  strings.TrimRight(cfg.GraphURL, "/"),
		RESTURL:   strings.TrimRight(cfg.RESTURL, "/"),
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		HTTP:      &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

// Call implements Client.
func (c *HTTPClient) Call(ctx context.Context, endpoint, method string, params Params) (Response, error) {
	ctx, span := otel.Tracer("platform").Start(ctx, "Platform.Call")
	defer span.End()
	span.SetAttributes(attribute.String("platform.endpoint", endpoint))

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return Response{}, &TransportError{Op: "throttle", Err: err}
		}
	}

	req, client, err := c.build(ctx, endpoint, method, params)
	if err != nil {
		return Response{}, &TransportError{Op: "request", Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, &TransportError{Op: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{}, &TransportError{Op: endpoint, Status: resp.StatusCode, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if perr := parseError(resp.StatusCode, body); perr != nil {
		return Response{}, perr
	}
	if resp.StatusCode >= 500 {
		return Response{}, &TransportError{Op: endpoint, Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if resp.StatusCode >= 400 {
		// Rejected without a recognisable error body.
		return Response{}, &PlatformError{Code: 0, Message: strings.TrimSpace(string(body))}
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}

func (c *HTTPClient) build(ctx context.Context, endpoint, method string, params Params) (*http.Request, *http.Client, error) {
	if method == "" {
		method = http.MethodPost
	}
	form := url.Values{}
	var token string
	for k, v := range params {
		s, err := encodeValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", k, err)
		}
		if k == "access_token" && !IsLegacy(endpoint) {
			token = s
			continue
		}
		form.Set(k, s)
	}

	var target string
	if IsLegacy(endpoint) {
		target = c.RESTURL + "/" + endpoint
		form.Set("api_key", c.AppID)
		form.Set("format", "json")
		form.Set("v", "1.0")
		form.Set("call_id", strconv.FormatInt(time.Now().UnixNano(), 10))
		form.Set("sig", sign(form, c.AppSecret))
	} else {
		target = c.GraphURL + "/" + strings.TrimLeft(endpoint, "/")
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, target+"?"+form.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := c.httpClient()
	if token != "" {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client = &http.Client{
			Timeout: client.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   base,
			},
		}
	}
	return req, client, nil
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// parseError recognises both error body shapes:
//
//	{"error": {"code": 200, "message": "..."}}   (graph)
//	{"error_code": 200, "error_msg": "..."}      (legacy)
func parseError(status int, body []byte) *PlatformError {
	if !gjson.ValidBytes(body) {
		return nil
	}
	if e := gjson.GetBytes(body, "error"); e.IsObject() {
		return &PlatformError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}
	if c := gjson.GetBytes(body, "error_code"); c.Exists() {
		return &PlatformError{Code: int(c.Int()), Message: gjson.GetBytes(body, "error_msg").String()}
	}
	return nil
}

func encodeValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sign computes the legacy request signature: md5 over the sorted k=v pairs
// followed by the application secret.
func sign(form url.Values, secret string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "sig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(form.Get(k))
	}
	b.WriteString(secret)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
