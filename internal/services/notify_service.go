// Package services – NotificationService
//
// NotificationService tells a local user that the relay removed their
// platform link. Texts come from an x/text message catalog; the locale is an
// explicit argument resolved per call, so concurrent notifications in
// different languages never share state.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// KindLinkRemoved tags notifications sent after a revoked link was deleted.
const KindLinkRemoved = "link_removed"

// Catalog keys. Arguments: platform name; then nickname, site name, platform.
const (
	keyDisconnectSubject = "Your %[1]s connection has been removed"
	keyDisconnectBody    = "Hi, %[1]s. We're sorry to inform you we are unable to publish your message to %[3]s, " +
		"and have removed the connection between your %[2]s account and %[3]s.\n\n" +
		"This may have happened because you have removed permission for %[2]s to post on your behalf, " +
		"or perhaps you have deactivated your %[3]s account. You can reconnect your %[2]s account to %[3]s " +
		"at any time by logging in with %[3]s again."
)

var disconnectCatalog = buildCatalog()

// supportedLocales lists catalog languages; the first is the fallback.
var supportedLocales = []language.Tag{language.English, language.French, language.Spanish, language.German}

var localeMatcher = language.NewMatcher(supportedLocales)

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		if err := b.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}
	set(language.English, keyDisconnectSubject, keyDisconnectSubject)
	set(language.English, keyDisconnectBody, keyDisconnectBody)

	set(language.French, keyDisconnectSubject, "Votre connexion %[1]s a été supprimée")
	set(language.French, keyDisconnectBody,
		"Bonjour %[1]s. Nous sommes désolés de vous informer que nous ne pouvons pas publier votre message sur %[3]s "+
			"et que nous avons supprimé la connexion entre votre compte %[2]s et %[3]s.\n\n"+
			"Cela peut arriver si vous avez retiré à %[2]s l'autorisation de publier en votre nom, "+
			"ou si vous avez désactivé votre compte %[3]s. Vous pouvez reconnecter votre compte %[2]s à %[3]s "+
			"à tout moment en vous connectant de nouveau avec %[3]s.")

	set(language.Spanish, keyDisconnectSubject, "Tu conexión con %[1]s ha sido eliminada")
	set(language.Spanish, keyDisconnectBody,
		"Hola, %[1]s. Lamentamos informarte de que no podemos publicar tu mensaje en %[3]s "+
			"y hemos eliminado la conexión entre tu cuenta de %[2]s y %[3]s.\n\n"+
			"Esto puede deberse a que retiraste el permiso de %[2]s para publicar en tu nombre, "+
			"o a que desactivaste tu cuenta de %[3]s. Puedes volver a conectar tu cuenta de %[2]s con %[3]s "+
			"en cualquier momento iniciando sesión de nuevo con %[3]s.")

	set(language.German, keyDisconnectSubject, "Deine %[1]s-Verbindung wurde entfernt")
	set(language.German, keyDisconnectBody,
		"Hallo %[1]s. Leider können wir deine Nachricht nicht auf %[3]s veröffentlichen "+
			"und haben die Verbindung zwischen deinem %[2]s-Konto und %[3]s entfernt.\n\n"+
			"Das kann passieren, wenn du %[2]s die Berechtigung entzogen hast, in deinem Namen zu posten, "+
			"oder wenn du dein %[3]s-Konto deaktiviert hast. Du kannst dein %[2]s-Konto jederzeit wieder mit %[3]s "+
			"verbinden, indem du dich erneut mit %[3]s anmeldest.")
	return b
}

// MatchLocale resolves a user language preference to a catalog language,
// falling back to fallback (or English) when nothing matches.
func MatchLocale(pref string, fallback language.Tag) language.Tag {
	if fallback == language.Und {
		fallback = language.English
	}
	pref = strings.TrimSpace(pref)
	if pref == "" {
		return fallback
	}
	tag, err := language.Parse(pref)
	if err != nil {
		return fallback
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return fallback
	}
	return supportedLocales[idx]
}

// withLocale runs fn with a printer bound to tag. The printer never outlives
// the call.
func withLocale(tag language.Tag, fn func(p *message.Printer)) {
	fn(message.NewPrinter(tag, message.Catalog(disconnectCatalog)))
}

// NotificationRepo is the persistence contract for the notification outbox.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, db *gorm.DB, userID, kind, locale, subject, body string) (*domain.Notification, error)
}

// Notifier renders and delivers the link-removed notice.
type Notifier interface {
	DisconnectNotice(user *domain.User, platformName string) (subject, body string, locale language.Tag)
	NotifyUser(ctx context.Context, user *domain.User, subject, body string) bool
}

// NotificationService writes user notifications to the outbox.
type NotificationService struct {
	DB   *gorm.DB
	Repo NotificationRepo

	// SiteName is the local service name used in texts.
	SiteName string
	// DefaultLocale applies when the user's language is unset or unknown.
	DefaultLocale language.Tag

	// Log is used unless ctx carries a logger (zerolog.Ctx), which keeps the
	// caller's fields on notification records.
	Log zerolog.Logger
}

func (s *NotificationService) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Log
}

// DisconnectNotice renders the link-removed texts for user in their language.
func (s *NotificationService) DisconnectNotice(user *domain.User, platformName string) (subject, body string, locale language.Tag) {
	locale = MatchLocale(user.Language, s.DefaultLocale)
	withLocale(locale, func(p *message.Printer) {
		subject = p.Sprintf(keyDisconnectSubject, platformName)
		body = p.Sprintf(keyDisconnectBody, user.Nickname, s.SiteName, platformName)
	})
	return subject, body, locale
}

// NotifyUser stores a notification for user and reports whether it was
// accepted. Failures are logged, never returned.
func (s *NotificationService) NotifyUser(ctx context.Context, user *domain.User, subject, body string) bool {
	locale := MatchLocale(user.Language, s.DefaultLocale)
	if _, err := s.Repo.CreateNotification(ctx, s.DB, user.ID, KindLinkRemoved, locale.String(), subject, body); err != nil {
		s.logger(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("could not store notification")
		return false
	}
	return true
}

// NotifyDisconnect renders and stores the link-removed notice.
func (s *NotificationService) NotifyDisconnect(ctx context.Context, user *domain.User, platformName string) bool {
	subject, body, _ := s.DisconnectNotice(user, platformName)
	return s.NotifyUser(ctx, user, subject, body)
}
