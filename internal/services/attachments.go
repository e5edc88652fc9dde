package services

import (
	"strings"

	"github.com/tbourn/go-relay-bridge/internal/domain"
	"github.com/tbourn/go-relay-bridge/internal/platform"
)

// Media MIME types the platform can embed besides images.
const (
	mimeFlash = "application/x-shockwave-flash"
	mimeMP3   = "audio/mpeg"

	fullSizeCaption = "Click for full size"
)

// ModernMedia is the single preview a graph feed post can carry.
type ModernMedia struct {
	Picture string
	Caption string
	Source  string
}

// apply adds the media fields to feed post params.
func (m *ModernMedia) apply(p platform.Params) {
	if m == nil {
		return
	}
	p["picture"] = m.Picture
	p["caption"] = m.Caption
	p["source"] = m.Source
}

// TranslateModern describes at most one attachment for a feed post: only the
// first attachment is considered, and only when it is an image, a flash
// movie or an mp3. Enclosures are not consulted. It returns nil when the post
// carries no media.
func TranslateModern(atts []domain.Attachment) *ModernMedia {
	if len(atts) == 0 {
		return nil
	}
	first := atts[0]
	if mediaKind(first.MimeType) == "" {
		return nil
	}
	return &ModernMedia{Picture: first.URL, Caption: fullSizeCaption, Source: first.URL}
}

// LegacyMedia is one stream.publish media entry.
type LegacyMedia struct {
	Type   string `json:"type"`
	Src    string `json:"src,omitempty"`
	Href   string `json:"href,omitempty"`
	SWFSrc string `json:"swfsrc,omitempty"`
}

// LegacyAttachment is the stream.publish attachment parameter. Name and Href
// link a page when no attachment resolved to embeddable media.
type LegacyAttachment struct {
	Media []LegacyMedia `json:"media"`
	Name  string        `json:"name,omitempty"`
	Href  string        `json:"href,omitempty"`
}

// IsEmpty reports whether the attachment adds nothing to the post.
func (a LegacyAttachment) IsEmpty() bool {
	return len(a.Media) == 0 && a.Name == "" && a.Href == ""
}

// TranslateLegacy describes every attachment for stream.publish. Each
// attachment is represented by its enclosure when it has one. Attachments
// that are not embeddable fall back to a name/href link (the last one wins),
// and that link is dropped as soon as any media entry exists.
func TranslateLegacy(atts []domain.Attachment) LegacyAttachment {
	out := LegacyAttachment{Media: []LegacyMedia{}}
	for _, a := range atts {
		src := a.Media()
		if enc, ok := a.Enclosure(); ok {
			src = enc
		}
		if m, ok := legacyMedia(src); ok {
			out.Media = append(out.Media, m)
			continue
		}
		out.Name = a.Title
		if strings.TrimSpace(out.Name) == "" {
			out.Name = a.URL
		}
		out.Href = a.URL
	}
	if len(out.Media) > 0 {
		out.Name, out.Href = "", ""
	}
	return out
}

func legacyMedia(m domain.Media) (LegacyMedia, bool) {
	switch mediaKind(m.MimeType) {
	case "image":
		return LegacyMedia{Type: "image", Src: m.URL, Href: m.URL}, true
	case "mp3":
		return LegacyMedia{Type: "mp3", Src: m.URL}, true
	case "flash":
		return LegacyMedia{Type: "flash", SWFSrc: m.URL}, true
	}
	return LegacyMedia{}, false
}

// mediaKind maps a MIME type to "image", "mp3", "flash" or "". Parameters and
// case are ignored; malformed values are simply not media.
func mediaKind(mimeType string) string {
	t := mimeType
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	t = strings.ToLower(strings.TrimSpace(t))
	switch {
	case strings.HasPrefix(t, "image/") && len(t) > len("image/"):
		return "image"
	case t == mimeMP3:
		return "mp3"
	case t == mimeFlash:
		return "flash"
	}
	return ""
}
