// Package services – LinkService
//
// LinkService manages the caller's own links: read, connect/update, and
// explicit disconnect. Automatic removal after a revoked authorization is
// done by RelayService.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/repo"
)

// LinkService provides link operations for a user.
type LinkService struct {
	DB   *gorm.DB
	Repo LinkRepo

	// Platform is the configured platform name. Links are stored under this
	// exact spelling whatever case the caller used; other names are rejected.
	// Empty accepts any name as given.
	Platform string
}

// NewLinkService constructs a LinkService for the named platform.
func NewLinkService(db *gorm.DB, r LinkRepo, platform string) *LinkService {
	return &LinkService{DB: db, Repo: r, Platform: strings.TrimSpace(platform)}
}

// canonical returns the stored spelling of a platform name.
func (s *LinkService) canonical(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", ErrEmptyPlatform
	case s.Platform == "":
		return name, nil
	case strings.EqualFold(name, s.Platform):
		return s.Platform, nil
	}
	return "", ErrUnknownPlatform
}

// Get returns the user's link on platform.
func (s *LinkService) Get(ctx context.Context, userID, platform string) (*domain.ExternalLink, error) {
	ctx, span := s.span(ctx, "Get", userID, platform)
	defer span.End()

	platform, err := s.canonical(platform)
	if err != nil {
		return nil, err
	}
	l, err := s.Repo.GetLink(ctx, s.DB, userID, platform)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	return l, err
}

// Upsert connects the user to platform or replaces the existing link.
// An empty credentials value selects the legacy API for this link.
func (s *LinkService) Upsert(ctx context.Context, userID, platform, remoteID, credentials string, syncFlags int) (*domain.ExternalLink, error) {
	ctx, span := s.span(ctx, "Upsert", userID, platform)
	defer span.End()

	platform, err := s.canonical(platform)
	if err != nil {
		return nil, err
	}
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, ErrEmptyRemoteID
	}
	if syncFlags < 0 || syncFlags&^domain.SyncMask != 0 {
		return nil, ErrInvalidSyncFlags
	}
	return s.Repo.UpsertLink(ctx, s.DB, &domain.ExternalLink{
		UserID:      userID,
		Platform:    platform,
		RemoteID:    remoteID,
		Credentials: strings.TrimSpace(credentials),
		SyncFlags:   syncFlags,
	})
}

// Disconnect removes the user's link on platform.
func (s *LinkService) Disconnect(ctx context.Context, userID, platform string) error {
	ctx, span := s.span(ctx, "Disconnect", userID, platform)
	defer span.End()

	platform, err := s.canonical(platform)
	if err != nil {
		return err
	}
	err = s.Repo.DeleteLink(ctx, s.DB, userID, platform)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrLinkNotFound
	}
	return err
}

func (s *LinkService) span(ctx context.Context, name, userID, platform string) (context.Context, trace.Span) {
	return otel.Tracer("services/LinkService").Start(ctx, name,
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("platform", platform),
		),
	)
}
