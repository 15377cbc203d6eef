package ports

import "context"

// PushMessage is the payload handed to a PushSender. Data carries the
// structured fields a receiving app needs to deep-link into the vault.
type PushMessage struct {
	To    string
	Title string
	Body  string
	Data  map[string]interface{}
}

// PushSender delivers one push notification. A non-nil error, or a
// delivery reported as failed by the endpoint's own payload, is a
// DeliveryFailure: bookkeeping is not rolled back, the next cycle
// retries on the regular schedule.
type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}
