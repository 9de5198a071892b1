package models

import "time"

// MessageType identifies a foreground -> background message.
type MessageType string

const (
	MessageUpdateReminders MessageType = "UPDATE_REMINDERS"
	MessageCancelReminders MessageType = "CANCEL_REMINDERS"
)

type Message struct {
	Type   MessageType     `json:"type"`
	Config *ReminderConfig `json:"config,omitempty"`
	// Source identifies the sending process so it can skip its own echo.
	Source string `json:"source,omitempty"`
}

// NotificationTag groups reminder notifications on the host.
const NotificationTag = "reminder"

// Action identifiers carried by the notification and returned by the host.
const (
	ActionComplete = "complete"
	ActionSnooze   = "snooze"
	ActionDismiss  = "dismiss"
	ActionOpen     = "open"
)

type NotificationAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type NotificationData struct {
	ID           string    `json:"id,omitempty"`
	ExerciseType string    `json:"exerciseType"`
	Count        int       `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
	Token        string    `json:"token,omitempty"`
}

// NotificationPayload is what gets handed to the host notification facility.
type NotificationPayload struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Tag     string               `json:"tag"`
	Actions []NotificationAction `json:"actions"`
	Data    NotificationData     `json:"data"`
}
