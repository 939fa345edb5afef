// Package notify is the outbound notification job family. It turns
// dispatched payloads into email messages and hands them to an external
// delivery gateway.
//
// The family owns a closed set of job names; enqueueing any other name
// under the family fails at execution time. Handlers are idempotent:
// re-sending the same email is an acceptable effect of at-least-once
// delivery, since a login link is still single-use at redemption.
package notify

import (
	"context"

	"github.com/toimcz/hail/id"
)

// Family is the queue/registry name of the notification job family.
const Family = "notification:send"

// Job names bound in the family.
const (
	NameSendMagicLink    = "send-magic-link"
	NameSendWelcomeEmail = "send-welcome-email"
)

// Templates referenced in outbound messages. Rendering belongs to the
// gateway; the core only names the template and supplies its parameters.
const (
	TemplateMagicLink    = "magic-link"
	TemplateWelcomeEmail = "welcome-email"
)

// Message is an outbound email handed to the delivery gateway.
type Message struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params,omitempty"`
}

// Gateway is the external delivery collaborator. Send returns the
// gateway-side delivery identifiers on success; auditing those deliveries
// is the gateway's concern, not the core's.
type Gateway interface {
	Send(ctx context.Context, msg *Message) ([]id.DeliveryID, error)
}

// MagicLinkPayload is the payload of a "send-magic-link" job.
type MagicLinkPayload struct {
	SubjectID string `json:"subject_id"`
	// Destination is the recipient address. Empty means the gateway
	// resolves the address from the subject.
	Destination string `json:"destination,omitempty"`
	// Link is the complete redemption URL, secret included.
	Link string `json:"link"`
}

// WelcomePayload is the payload of a "send-welcome-email" job.
type WelcomePayload struct {
	SubjectID   string `json:"subject_id"`
	Destination string `json:"destination,omitempty"`
	// DisplayName personalizes the greeting.
	DisplayName string `json:"display_name,omitempty"`
}
