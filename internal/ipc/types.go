package ipc

import (
	"time"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/content"
	"feedrelay/internal/transfer"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// Operation describes one in-flight transfer.
type Operation struct {
	Key         string    `json:"key"`
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Phase       string    `json:"phase"`
	State       string    `json:"state"`
	Expected    int64     `json:"expected"`
	Transferred int64     `json:"transferred"`
	StartedAt   time.Time `json:"started_at"`
}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running        bool        `json:"running"`
	PID            int         `json:"pid"`
	StartedAt      time.Time   `json:"started_at"`
	LockPath       string      `json:"lock_path"`
	DatabasePath   string      `json:"database_path"`
	Records        int         `json:"records"`
	InFlight       int         `json:"in_flight"`
	Waiting        int         `json:"waiting"`
	Capacity       int         `json:"capacity"`
	UpdatesHandled int64       `json:"updates_handled"`
	LastPollError  string      `json:"last_poll_error"`
	MetricsAddr    string      `json:"metrics_addr"`
	Operations     []Operation `json:"operations"`
}

// DeliveryOptions overrides the configured delivery choices.
type DeliveryOptions struct {
	SendAsFile       bool `json:"send_as_file"`
	IncludeLiveMedia bool `json:"include_live_media"`
	UseAlternateLink bool `json:"use_alternate_link"`
	BatchSize        int  `json:"batch_size"`
}

// DeliverRequest submits one item for delivery.
type DeliverRequest struct {
	ChatID  string           `json:"chat_id"`
	Item    content.Item     `json:"item"`
	Options *DeliveryOptions `json:"options,omitempty"`
	ReplyTo string           `json:"reply_to,omitempty"`
}

// DeliverResponse reports a finished delivery.
type DeliverResponse struct {
	Status           string `json:"status"`
	Strategy         string `json:"strategy"`
	PrimaryKey       string `json:"primary_key"`
	Messages         int    `json:"messages"`
	Delivered        int    `json:"delivered"`
	Failed           int    `json:"failed"`
	TransferredBytes int64  `json:"transferred_bytes"`
	Summary          string `json:"summary"`
	Error            string `json:"error,omitempty"`
	PersistError     string `json:"persist_error,omitempty"`
}

// TriggerRequest asks for a follow-up action on the record owning Key.
type TriggerRequest struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

// TriggerResponse reports the dispatcher decision.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// ControlRequest addresses a running transfer by its status message key.
type ControlRequest struct {
	Key string `json:"key"`
}

// ControlResponse reports whether the transfer changed state.
type ControlResponse struct {
	Changed bool `json:"changed"`
}

// OperationsRequest lists in-flight transfers.
type OperationsRequest struct{}

// OperationsResponse contains in-flight transfers.
type OperationsResponse struct {
	Operations []Operation `json:"operations"`
}

// Record is the wire form of an action-state record.
type Record struct {
	PrimaryKey string            `json:"primary_key"`
	ChatID     string            `json:"chat_id"`
	ItemID     string            `json:"item_id"`
	Title      string            `json:"title"`
	SourceURL  string            `json:"source_url"`
	Media      int               `json:"media"`
	TotalBytes int64             `json:"total_bytes"`
	Flags      actionstate.Flags `json:"flags"`
	Actions    map[string]string `json:"actions"`
	Auxiliary  map[string]string `json:"auxiliary,omitempty"`
	Aliases    []string          `json:"aliases"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// RecordListRequest lists recent records.
type RecordListRequest struct {
	Limit int `json:"limit"`
}

// RecordListResponse contains recent records, newest first.
type RecordListResponse struct {
	Records []Record `json:"records"`
}

// RecordShowRequest resolves a primary or alias key.
type RecordShowRequest struct {
	Key string `json:"key"`
}

// RecordShowResponse contains the resolved record.
type RecordShowResponse struct {
	Record Record `json:"record"`
}

// RecordDeleteRequest removes the record owning Key.
type RecordDeleteRequest struct {
	Key string `json:"key"`
}

// RecordDeleteResponse reports the primary key that was removed.
type RecordDeleteResponse struct {
	PrimaryKey string `json:"primary_key"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

func fromSnapshot(s transfer.Snapshot) Operation {
	return Operation{
		Key:         s.Key,
		ID:          s.ID,
		Label:       s.Label,
		Phase:       string(s.Phase),
		State:       s.State.String(),
		Expected:    s.Expected,
		Transferred: s.Transferred,
		StartedAt:   s.StartedAt,
	}
}

func fromSnapshots(snaps []transfer.Snapshot) []Operation {
	out := make([]Operation, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, fromSnapshot(s))
	}
	return out
}

func fromRecord(r *actionstate.Record) Record {
	actions := make(map[string]string, len(actionstate.ActionKinds))
	for _, kind := range actionstate.ActionKinds {
		actions[string(kind)] = string(r.ActionState(kind))
	}
	return Record{
		PrimaryKey: r.PrimaryKey,
		ChatID:     r.ChatID,
		ItemID:     r.ItemID,
		Title:      r.Title,
		SourceURL:  r.SourceURL,
		Media:      len(r.Manifest),
		TotalBytes: r.TotalBytes,
		Flags:      r.Flags,
		Actions:    actions,
		Auxiliary:  r.Auxiliary,
		Aliases:    append([]string(nil), r.Aliases...),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
