package models

import "time"

// Channel is the medium an agent conversation runs on.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// AgentSession is the durable record of one ongoing AI-agent conversation
// with one lead on one channel. Sessions are matched, not uniquely
// constrained: lead identity is noisy, so correctness relies on the
// matcher's bounded candidate search and tie-break rather than on the
// store.
type AgentSession struct {
	ID           string  `json:"id"`
	WorkflowID   string  `json:"workflow_id"`
	EnrollmentID string  `json:"enrollment_id,omitempty"`
	LocationID   string  `json:"location_id,omitempty"`
	AgentID      string  `json:"agent_id"`
	Channel      Channel `json:"channel"`

	Lead            Lead   `json:"lead"`
	LeadPhoneNorm   string `json:"lead_phone_norm,omitempty"`
	LeadPhoneLast10 string `json:"lead_phone_last10,omitempty"`
	LeadEmailNorm   string `json:"lead_email_norm,omitempty"`
	ContactID       string `json:"contact_id,omitempty"` // external CRM contact

	// Sending number the provider used for this conversation, when known.
	TwilioFromPhone   string `json:"twilio_from_phone,omitempty"`
	TwilioToPhoneNorm string `json:"twilio_to_phone_norm,omitempty"`

	Active      bool      `json:"active"`
	ActivatedAt time.Time `json:"activated_at"`

	LastInboundAt         *time.Time `json:"last_inbound_at,omitempty"`
	LastInboundMessageID  string     `json:"last_inbound_message_id,omitempty"`
	LastOutboundAt        *time.Time `json:"last_outbound_at,omitempty"`
	LastOutboundMessageID string     `json:"last_outbound_message_id,omitempty"`

	FollowUpStep   int        `json:"follow_up_step"`
	NextFollowUpAt *time.Time `json:"next_follow_up_at,omitempty"`
	LastFollowUpAt *time.Time `json:"last_follow_up_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
