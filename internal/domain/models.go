// Package domain defines the persistence models for local messages, their
// attachments, user profiles, and the links binding local users to accounts
// on remote platforms. These types are mapped with GORM and form the core data
// layer of the relay.
package domain

import (
	"strings"
	"time"
)

// Sync preference bits stored in ExternalLink.SyncFlags.
const (
	// SyncSend allows the user's own posts to be relayed.
	SyncSend = 1 << iota
	// SyncReceive is reserved for inbound import of remote posts.
	SyncReceive
	// SyncSendReplies allows posts that @-mention someone to be relayed.
	SyncSendReplies

	// SyncMask covers every defined bit.
	SyncMask = SyncSend | SyncReceive | SyncSendReplies
)

// Message is an immutable local post. Source records where the post came
// from (e.g. "web", "api", or a remote platform name when it was imported),
// which the relay uses to avoid sending a post back to its origin.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - AuthorID: local user that wrote the message (indexed).
//   - Content: the text body.
//   - Source: origin-source tag.
//   - Attachments: ordered by Position.
type Message struct {
	ID          string       `json:"id"          gorm:"type:char(36);primaryKey"`
	AuthorID    string       `json:"author_id"   gorm:"type:varchar(64);not null;index:idx_author_msgs"`
	Content     string       `json:"content"     gorm:"type:text;not null"`
	Source      string       `json:"source"      gorm:"type:varchar(32);not null;default:'web'"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Media is a resolved media resource: a MIME type, a URL and an optional title.
type Media struct {
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// Attachment references external media linked from a message. An attachment
// may carry an enclosure: a secondary resource resolved from the attachment
// URL (for instance the image behind an oEmbed page link).
type Attachment struct {
	ID                string `json:"-"                            gorm:"type:char(36);primaryKey"`
	MessageID         string `json:"-"                            gorm:"type:char(36);not null;index:idx_msg_attachments,priority:1"`
	Position          int    `json:"-"                            gorm:"not null;index:idx_msg_attachments,priority:2"`
	MimeType          string `json:"mimetype"                     gorm:"type:varchar(128)"`
	URL               string `json:"url"                          gorm:"type:text;not null"`
	Title             string `json:"title,omitempty"              gorm:"type:varchar(255)"`
	EnclosureMimeType string `json:"enclosure_mimetype,omitempty" gorm:"type:varchar(128)"`
	EnclosureURL      string `json:"enclosure_url,omitempty"      gorm:"type:text"`
	EnclosureTitle    string `json:"enclosure_title,omitempty"    gorm:"type:varchar(255)"`
}

// TableName returns the database table name for Attachment.
func (Attachment) TableName() string { return "attachments" }

// Media returns the attachment's own description.
func (a Attachment) Media() Media {
	return Media{MimeType: a.MimeType, URL: a.URL, Title: a.Title}
}

// Enclosure returns the resolved enclosure, if the attachment has one.
func (a Attachment) Enclosure() (Media, bool) {
	if strings.TrimSpace(a.EnclosureURL) == "" {
		return Media{}, false
	}
	return Media{MimeType: a.EnclosureMimeType, URL: a.EnclosureURL, Title: a.EnclosureTitle}, true
}

// User is the slice of a local profile the relay needs to address a user.
type User struct {
	ID        string    `json:"id"        gorm:"type:varchar(64);primaryKey"`
	Nickname  string    `json:"nickname"  gorm:"type:varchar(64);not null"`
	Email     string    `json:"email"     gorm:"type:varchar(255)"`
	Language  string    `json:"language"  gorm:"type:varchar(16)"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ExternalLink binds a local user to an account on a remote platform.
// A user has at most one link per platform (enforced by unique index).
//
// Fields:
//   - UserID / Platform: the binding key.
//   - RemoteID: the account identifier on the remote platform.
//   - Credentials: opaque bearer token; empty for links created before the
//     platform issued tokens, which selects the legacy API.
//   - SyncFlags: bitmask of Sync* preferences.
type ExternalLink struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_link_user_platform,priority:1"`
	Platform    string    `json:"platform"    gorm:"type:varchar(32);not null;uniqueIndex:ux_link_user_platform,priority:2"`
	RemoteID    string    `json:"remote_id"   gorm:"type:varchar(128);not null"`
	Credentials string    `json:"-"           gorm:"type:text"`
	SyncFlags   int       `json:"sync_flags"  gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for ExternalLink.
func (ExternalLink) TableName() string { return "external_links" }

// HasCredentials reports whether the link carries a non-empty token.
func (l ExternalLink) HasCredentials() bool {
	return strings.TrimSpace(l.Credentials) != ""
}

// SendsPosts reports whether the user wants their own posts relayed.
func (l ExternalLink) SendsPosts() bool { return l.SyncFlags&SyncSend == SyncSend }

// SendsReplies reports whether the user wants @-replies relayed.
func (l ExternalLink) SendsReplies() bool { return l.SyncFlags&SyncSendReplies == SyncSendReplies }
