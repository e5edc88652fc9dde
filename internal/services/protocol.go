package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/platform"
)

// PathKind names a protocol generation.
type PathKind string

const (
	PathModern PathKind = "modern"
	PathLegacy PathKind = "legacy"
)

// Extended permissions checked on the legacy path, in order of preference.
const (
	PermPublishStream = "publish_stream"
	PermStatusUpdate  = "status_update"
)

// Delivery carries everything a protocol path needs for one publish.
type Delivery struct {
	Client  platform.Client
	Link    *domain.ExternalLink
	Message *domain.Message
	Log     zerolog.Logger

	// OnCall, when set, is invoked once per remote call with the call name.
	OnCall func(path PathKind, call string)
}

func (d Delivery) observe(path PathKind, call string) {
	if d.OnCall != nil {
		d.OnCall(path, call)
	}
}

// Published is the result of a path that ran without a remote error.
// Sent is false when the path decided not to publish (legacy account with no
// posting permission); Reason then says why.
type Published struct {
	Sent     bool
	RemoteID string
	Reason   string
}

// ProtocolPath is one way of publishing a message. The set of paths is
// closed: ModernPath and LegacyPath.
type ProtocolPath interface {
	Kind() PathKind
	// Deliver publishes the message. Errors are the remote errors, returned
	// unchanged for classification.
	Deliver(ctx context.Context, d Delivery) (Published, error)
	isProtocolPath()
}

// SelectPath picks the modern path when the link carries a token and the
// legacy permission-based path otherwise.
func SelectPath(link *domain.ExternalLink) ProtocolPath {
	if link != nil && link.HasCredentials() {
		return ModernPath{Token: link.Credentials}
	}
	return LegacyPath{}
}

// ModernPath posts to the account feed with a bearer token. It carries at
// most one media preview.
type ModernPath struct {
	Token string
}

func (ModernPath) Kind() PathKind  { return PathModern }
func (ModernPath) isProtocolPath() {}

// Deliver implements ProtocolPath.
func (p ModernPath) Deliver(ctx context.Context, d Delivery) (Published, error) {
	ctx, span := otel.Tracer("services/ModernPath").Start(ctx, "Deliver",
		trace.WithAttributes(attribute.String("message.id", d.Message.ID)),
	)
	defer span.End()

	params := platform.Params{
		"access_token": p.Token,
		"message":      d.Message.Content,
	}
	TranslateModern(d.Message.Attachments).apply(params)

	d.Log.Debug().Msg("posting message to feed")
	d.observe(PathModern, "feed")
	resp, err := d.Client.Call(ctx, "/"+url.PathEscape(d.Link.RemoteID)+"/feed", http.MethodPost, params)
	if err != nil {
		return Published{}, err
	}
	return Published{Sent: true, RemoteID: resp.ID()}, nil
}

// LegacyPath publishes through the permission-based API. It prefers
// stream.publish, which takes attachments and returns an id, and falls back
// to a plain status update.
type LegacyPath struct{}

func (LegacyPath) Kind() PathKind  { return PathLegacy }
func (LegacyPath) isProtocolPath() {}

// Deliver implements ProtocolPath. The status_update permission is only
// queried when publish_stream is not granted.
func (p LegacyPath) Deliver(ctx context.Context, d Delivery) (Published, error) {
	ctx, span := otel.Tracer("services/LegacyPath").Start(ctx, "Deliver",
		trace.WithAttributes(attribute.String("message.id", d.Message.ID)),
	)
	defer span.End()

	uid := d.Link.RemoteID

	canPublish, err := p.hasPermission(ctx, d, PermPublishStream)
	if err != nil {
		return Published{}, err
	}
	if canPublish {
		params := platform.Params{
			"message": d.Message.Content,
			"uid":     uid,
		}
		att := TranslateLegacy(d.Message.Attachments)
		if !att.IsEmpty() {
			params["attachment"] = att
		}
		d.observe(PathLegacy, "stream.publish")
		resp, err := d.Client.Call(ctx, platform.MethodStreamPublish, http.MethodPost, params)
		if err != nil {
			return Published{}, err
		}
		d.Log.Info().Bool("with_attachment", !att.IsEmpty()).Msg("published message as stream item")
		return Published{Sent: true, RemoteID: resp.ID()}, nil
	}

	canUpdate, err := p.hasPermission(ctx, d, PermStatusUpdate)
	if err != nil {
		return Published{}, err
	}
	if canUpdate {
		d.observe(PathLegacy, "users.setStatus")
		_, err := d.Client.Call(ctx, platform.MethodSetStatus, http.MethodPost, platform.Params{
			"status":               d.Message.Content,
			"status_includes_verb": true,
			"uid":                  uid,
		})
		if err != nil {
			return Published{}, err
		}
		d.Log.Info().Msg("published message as status update")
		return Published{Sent: true}, nil
	}

	d.Log.Warn().Msg("account lacks publish_stream and status_update permission; not publishing")
	return Published{Reason: "missing publish permission"}, nil
}

func (LegacyPath) hasPermission(ctx context.Context, d Delivery, perm string) (bool, error) {
	d.observe(PathLegacy, "users.hasAppPermission")
	resp, err := d.Client.Call(ctx, platform.MethodHasAppPermission, http.MethodPost, platform.Params{
		"ext_perm": perm,
		"uid":      d.Link.RemoteID,
	})
	if err != nil {
		return false, err
	}
	granted := resp.Bool()
	// Best-effort diagnostic; the raw answer is only logged.
	d.Log.Debug().Str("permission", perm).Bool("granted", granted).Bytes("answer", resp.Body).Msg("checked permission")
	return granted, nil
}
