package mqtt

// Topic structure for the authd message bus.
//
// All topics live under the "authd/" prefix:
//
//	authd/system/status          — service online/offline (retained)
//	authd/notify/email           — outbound email hand-off to the mailer
//	authd/events/security        — session-lifecycle security events
//
// The notify topic decouples token delivery from SMTP: authd publishes the
// message, a separate mailer service owns the actual sending.

// topicPrefix is the root of every authd topic.
const topicPrefix = "authd"

// Topics builds authd topic strings. The zero value is ready to use.
type Topics struct{}

// SystemStatus returns the retained service status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// NotifyEmail returns the outbound email hand-off topic.
func (Topics) NotifyEmail() string {
	return topicPrefix + "/notify/email"
}

// SecurityEvents returns the security event stream topic.
func (Topics) SecurityEvents() string {
	return topicPrefix + "/events/security"
}
