package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PushSubscription is a browser push endpoint with its encryption keys.
type PushSubscription struct {
	Endpoint    string `db:"endpoint" json:"endpoint"`
	SettingsKey string `db:"settings_key" json:"-"`
	P256dh      string `db:"p256dh" json:"p256dh"`
	Auth        string `db:"auth" json:"auth"`
	CreatedAt   int64  `db:"created_at" json:"-"`
}

type Subscriptions struct {
	db  *sqlx.DB
	key string
}

// NewSubscriptions scopes subscription queries to one settings record.
func NewSubscriptions(db *sqlx.DB, settingsKey string) *Subscriptions {
	return &Subscriptions{db: db, key: settingsKey}
}

// Upsert stores sub, replacing keys for an endpoint that re-subscribed.
func (s *Subscriptions) Upsert(ctx context.Context, sub PushSubscription) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO push_subscriptions (endpoint, settings_key, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
		settings_key = excluded.settings_key,
		p256dh = excluded.p256dh,
		auth = excluded.auth`),
		sub.Endpoint, s.key, sub.P256dh, sub.Auth, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *Subscriptions) List(ctx context.Context) ([]PushSubscription, error) {
	var subs []PushSubscription
	err := s.db.SelectContext(ctx, &subs, s.db.Rebind(
		"SELECT endpoint, settings_key, p256dh, auth, created_at FROM push_subscriptions WHERE settings_key = ? ORDER BY created_at"),
		s.key)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes an endpoint. Deleting an unknown endpoint is not an error.
func (s *Subscriptions) Delete(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM push_subscriptions WHERE settings_key = ? AND endpoint = ?"),
		s.key, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
