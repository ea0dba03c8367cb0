package notify

import (
	"context"
	"time"
)

// PushResult is the outcome of one push delivery attempt. Client errors are
// terminal for the endpoint (it will never succeed again and is removed from
// the registry); server errors are transient and leave the endpoint intact.
type PushResult int

const (
	PushOK PushResult = iota
	PushClientError
	PushServerError
)

// PushPayload is what a push transport delivers to a listener's device.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"` // collapses repeat notifications for one seeker
}

// EmailData is the template input for the email fallback channel.
type EmailData struct {
	SeekerName string
	Familiar   bool // favorites get wording that emphasizes familiarity
}

// PushSender is the realtime push delivery capability. This core owns
// fan-out and endpoint selection, not the transport.
type PushSender interface {
	DeliverPush(ctx context.Context, endpoint string, payload PushPayload) PushResult
}

// EmailSender is the email delivery capability.
type EmailSender interface {
	DeliverEmail(ctx context.Context, address string, data EmailData) error
}

// recipient is one listener inside a wave, with everything the channel
// chain needs resolved up front.
type recipient struct {
	userID    string
	email     string
	emailOpt  bool
	endpoints []string
	familiar  bool
}

// channel is one tier in the per-recipient delivery chain. Deliver reports
// whether the recipient was reached; unreached recipients cascade to the
// next channel. New channels append to the chain without touching the
// wave-ordering logic.
type channel interface {
	name() string
	deliver(ctx context.Context, r recipient, data EmailData) bool
}

// pushChannel delivers through every registered endpoint and prunes the
// ones that fail with a client error.
type pushChannel struct {
	sender  PushSender
	timeout time.Duration
	payload func(r recipient) PushPayload
	// prune removes a permanently invalid endpoint from the registry.
	prune func(ctx context.Context, endpoint string)
}

func (c *pushChannel) name() string { return "push" }

func (c *pushChannel) deliver(ctx context.Context, r recipient, _ EmailData) bool {
	if len(r.endpoints) == 0 {
		return false
	}
	reached := false
	for _, ep := range r.endpoints {
		attempt, cancel := context.WithTimeout(ctx, c.timeout)
		res := c.sender.DeliverPush(attempt, ep, c.payload(r))
		cancel()

		switch res {
		case PushOK:
			reached = true
		case PushClientError:
			c.prune(ctx, ep)
		case PushServerError:
			// transient; endpoint stays for future attempts
		}
	}
	return reached
}

// emailChannel is the opt-in secondary tier.
type emailChannel struct {
	sender  EmailSender
	timeout time.Duration
}

func (c *emailChannel) name() string { return "email" }

func (c *emailChannel) deliver(ctx context.Context, r recipient, data EmailData) bool {
	if !r.emailOpt || r.email == "" {
		return false
	}
	attempt, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.sender.DeliverEmail(attempt, r.email, data) == nil
}
