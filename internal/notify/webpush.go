package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"fitremind/internal/database"
	"fitremind/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// VAPID holds the application server keys used to sign push requests.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

// Configured reports whether all keys are present.
func (v VAPID) Configured() bool {
	return v.PublicKey != "" && v.PrivateKey != "" && v.Subject != ""
}

func (v VAPID) options() *webpush.Options {
	ttl := v.TTL
	if ttl <= 0 {
		ttl = 30
	}
	return &webpush.Options{
		Subscriber:      v.Subject,
		VAPIDPublicKey:  v.PublicKey,
		VAPIDPrivateKey: v.PrivateKey,
		TTL:             ttl,
		Urgency:         webpush.UrgencyNormal,
	}
}

// SubscriptionStore is satisfied by *database.Subscriptions.
type SubscriptionStore interface {
	List(ctx context.Context) ([]database.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

// WebPush sends the payload to every registered browser subscription.
type WebPush struct {
	subs   SubscriptionStore
	vapid  VAPID
	logger *slog.Logger
}

func NewWebPush(subs SubscriptionStore, vapid VAPID, logger *slog.Logger) *WebPush {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebPush{subs: subs, vapid: vapid, logger: logger}
}

// Notify returns ErrPermissionDenied when no subscription is left, which is
// how a browser that revoked permission shows up on the server side.
func (w *WebPush) Notify(ctx context.Context, p models.NotificationPayload) error {
	if !w.vapid.Configured() {
		return ErrNotConfigured
	}

	subs, err := w.subs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: no push subscriptions", ErrPermissionDenied)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	options := w.vapid.options()
	sent, failed, removed := 0, 0, 0

	for _, s := range subs {
		sub := &webpush.Subscription{
			Endpoint: s.Endpoint,
			Keys:     webpush.Keys{P256dh: s.P256dh, Auth: s.Auth},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, body, sub, options)
		if err != nil {
			w.logger.Warn("push send failed", "endpoint", shorten(s.Endpoint), "error", err)
			failed++
			continue
		}
		status := resp.StatusCode
		if status >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			w.logger.Warn("push service rejected notification",
				"endpoint", shorten(s.Endpoint), "status", status, "response", string(msg))
		}
		resp.Body.Close()

		switch {
		case status == http.StatusGone || status == http.StatusNotFound || status == http.StatusForbidden:
			// Expired, or signed with keys the subscription no longer matches.
			// The client re-subscribes with current keys.
			if err := w.subs.Delete(ctx, s.Endpoint); err != nil {
				w.logger.Error("failed to remove subscription", "endpoint", shorten(s.Endpoint), "error", err)
			}
			removed++
		case status >= 400:
			failed++
		default:
			sent++
		}
	}

	w.logger.Debug("push summary", "subscriptions", len(subs), "sent", sent, "failed", failed, "removed", removed)

	if sent > 0 {
		return nil
	}
	if removed == len(subs) {
		return fmt.Errorf("%w: all push subscriptions expired", ErrPermissionDenied)
	}
	return fmt.Errorf("failed to send any push notifications (attempted %d)", len(subs))
}

func shorten(endpoint string) string {
	if len(endpoint) > 50 {
		return endpoint[:50] + "..."
	}
	return endpoint
}
