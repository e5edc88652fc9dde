// Package services – RelayService
//
// RelayService is the outbound dispatcher. For one locally created message it
// resolves the author's link, checks eligibility, picks the protocol path,
// publishes, and turns any remote failure into a domain.DeliveryOutcome. On a
// revoked authorization it removes the link and notifies the user.
//
// Relay never returns an error and never panics: the queue consumer only ever
// sees an outcome.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/platform"
	"github.com/tbourn/go-relay-bridge/internal/repo"
)

// LinkRepo is the Link Store contract.
type LinkRepo interface {
	GetLink(ctx context.Context, db *gorm.DB, userID, platform string) (*domain.ExternalLink, error)
	UpsertLink(ctx context.Context, db *gorm.DB, link *domain.ExternalLink) (*domain.ExternalLink, error)
	DeleteLink(ctx context.Context, db *gorm.DB, userID, platform string) error
}

// UserRepo resolves local profiles for notifications.
type UserRepo interface {
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

// ReceiptRepo records successful deliveries.
type ReceiptRepo interface {
	GetReceipt(ctx context.Context, db *gorm.DB, messageID, platform string) (*domain.DeliveryReceipt, error)
	CreateReceipt(ctx context.Context, db *gorm.DB, messageID, platform, path, remoteID string) (*domain.DeliveryReceipt, error)
}

// RelayService dispatches messages to one remote platform.
type RelayService struct {
	DB *gorm.DB

	Links    LinkRepo
	Users    UserRepo
	Receipts ReceiptRepo // optional; nil disables redelivery protection

	Client     platform.Client
	Notifier   Notifier
	Classifier Classifier

	// Platform is the remote platform name, used as link key and loop guard.
	Platform string

	Log zerolog.Logger
}

// Relay delivers msg and reports the outcome.
func (s *RelayService) Relay(ctx context.Context, msg *domain.Message) (out domain.DeliveryOutcome) {
	if msg == nil {
		s.Log.Error().Str("platform", s.Platform).Msg("relay called without a message")
		out = domain.PermanentFailure("no message")
		relayOutcomes.WithLabelValues(s.Platform, outcomeLabel(string(out.Kind), out.Skipped)).Inc()
		return out
	}
	ctx, span := otel.Tracer("services/RelayService").Start(ctx, "Relay",
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("user.id", msg.AuthorID),
			attribute.String("platform", s.Platform),
		),
	)
	start := time.Now()
	lg := s.Log.With().
		Str("message_id", msg.ID).
		Str("user_id", msg.AuthorID).
		Str("platform", s.Platform).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("relay panicked")
			out = domain.PermanentFailure(fmt.Sprintf("internal error: %v", r))
		}
		relayOutcomes.WithLabelValues(s.Platform, outcomeLabel(string(out.Kind), out.Skipped)).Inc()
		relayDuration.WithLabelValues(s.Platform).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("relay.outcome", string(out.Kind)), attribute.Bool("relay.skipped", out.Skipped))
		if out.Kind != domain.OutcomeDelivered {
			span.SetStatus(codes.Error, out.Reason)
		}
		span.End()
	}()

	link, err := s.Links.GetLink(ctx, s.DB, msg.AuthorID, s.Platform)
	if errors.Is(err, repo.ErrNotFound) {
		lg.Warn().Msg("author has no link to the platform; skipping")
		return domain.Skipped("no link")
	}
	if err != nil {
		lg.Error().Err(err).Msg("link lookup failed")
		return domain.TransientFailure("link lookup: " + err.Error())
	}
	lg = lg.With().Str("remote_id", link.RemoteID).Logger()

	if ok, reason := CheckEligibility(msg, link, s.Platform); !ok {
		lg.Info().Str("reason", reason).Msg("message not bound for platform; skipping")
		return domain.Skipped(reason)
	}

	if s.Receipts != nil {
		rec, err := s.Receipts.GetReceipt(ctx, s.DB, msg.ID, s.Platform)
		switch {
		case err == nil:
			lg.Info().Str("receipt_remote_id", rec.RemoteID).Msg("message already delivered; skipping")
			return domain.Skipped("already delivered")
		case !errors.Is(err, repo.ErrNotFound):
			lg.Error().Err(err).Msg("receipt lookup failed")
			return domain.TransientFailure("receipt lookup: " + err.Error())
		}
	}

	path := SelectPath(link)
	lg = lg.With().Str("path", string(path.Kind())).Logger()
	pub, err := path.Deliver(ctx, Delivery{
		Client:  s.Client,
		Link:    link,
		Message: msg,
		Log:     lg,
		OnCall: func(p PathKind, call string) {
			relayRemoteCalls.WithLabelValues(s.Platform, string(p), call).Inc()
		},
	})
	if err != nil {
		return s.handleFailure(ctx, lg, link, err)
	}
	if !pub.Sent {
		return domain.Skipped(pub.Reason)
	}

	if s.Receipts != nil {
		if _, err := s.Receipts.CreateReceipt(ctx, s.DB, msg.ID, s.Platform, string(path.Kind()), pub.RemoteID); err != nil {
			lg.Warn().Err(err).Msg("could not record delivery receipt")
		}
	}
	lg.Info().Str("remote_post_id", pub.RemoteID).Msg("message relayed")
	return domain.Delivered(string(path.Kind()), pub.RemoteID)
}

// handleFailure classifies a remote error, logs it, and performs the revoke
// side effects when needed.
func (s *RelayService) handleFailure(ctx context.Context, lg zerolog.Logger, link *domain.ExternalLink, err error) domain.DeliveryOutcome {
	c := s.Classifier.Classify(err)
	ev := func(e *zerolog.Event) *zerolog.Event {
		e = e.Str("error", c.Message).Str("verdict", c.Verdict.String())
		if c.HasCode {
			e = e.Int("code", c.Code)
		}
		return e
	}
	reason := err.Error()

	switch c.Verdict {
	case VerdictRetry:
		ev(lg.Warn()).Msg("remote call failed without an error code; will retry")
		return domain.TransientFailure(reason)

	case VerdictRevoke:
		ev(lg.Warn()).Msg("platform revoked authorization; removing link")
		s.disconnect(ctx, lg, link)
		return domain.Revoked(reason)
	}

	switch c.Code {
	case CodeInvalidParameter:
		ev(lg.Error()).Msg("platform rejected a parameter; dequeuing")
	case CodeRateLimited:
		ev(lg.Info()).Msg("account exceeded its posting limit; dequeuing")
	default:
		ev(lg.Error()).Msg("unhandled platform error; dequeuing")
	}
	return domain.PermanentFailure(reason)
}

// disconnect deletes the link once and notifies the user once. Neither step
// can change the outcome; failures are logged.
func (s *RelayService) disconnect(ctx context.Context, lg zerolog.Logger, link *domain.ExternalLink) {
	if err := s.Links.DeleteLink(ctx, s.DB, link.UserID, link.Platform); err != nil {
		lg.Error().Err(err).Msg("could not remove link")
	}
	if s.Notifier == nil {
		return
	}
	user := s.profile(ctx, lg, link.UserID)
	subject, body, _ := s.Notifier.DisconnectNotice(user, s.Platform)
	if !s.Notifier.NotifyUser(lg.WithContext(ctx), user, subject, body) {
		lg.Warn().Msg("could not notify user about the removed link")
	}
}

func (s *RelayService) profile(ctx context.Context, lg zerolog.Logger, userID string) *domain.User {
	if s.Users != nil {
		u, err := s.Users.GetUser(ctx, s.DB, userID)
		if err == nil {
			return u
		}
		lg.Debug().Err(err).Msg("user profile unavailable; using defaults")
	}
	return &domain.User{ID: userID, Nickname: userID}
}
