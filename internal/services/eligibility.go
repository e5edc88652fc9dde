package services

import (
	"regexp"
	"strings"

	"github.com/tbourn/go-relay-bridge/internal/domain"
)

// replyPattern matches an @-mention of a remote-style nickname.
var replyPattern = regexp.MustCompile(`@[A-Za-z0-9_]{1,15}\b`)

// IsReply reports whether content mentions someone.
func IsReply(content string) bool {
	return replyPattern.MatchString(content)
}

// CheckEligibility decides whether msg should go to platform over link.
// When it should not, reason explains why.
func CheckEligibility(msg *domain.Message, link *domain.ExternalLink, platformName string) (ok bool, reason string) {
	if strings.EqualFold(strings.TrimSpace(msg.Source), platformName) {
		return false, "message originates from " + platformName
	}
	if !link.SendsPosts() {
		return false, "sending posts is disabled"
	}
	if IsReply(msg.Content) && !link.SendsReplies() {
		return false, "sending replies is disabled"
	}
	return true, ""
}
