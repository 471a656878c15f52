package models

import (
	"encoding/json"
	"time"
)

// OpType is the wire operation kind, a JSON-patch-like vocabulary.
type OpType string

const (
	OpReplace OpType = "replace"
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
)

// Actor identifies who issued an operation.
type Actor struct {
	UserID string `json:"userId"`
}

// Op is one mutation of the results tree, addressed by a slash-separated
// path such as /rounds/0/matches/1/sets.
type Op struct {
	ID          string          `json:"id"`
	BaseVersion int64           `json:"base_version"`
	Type        OpType          `json:"op"`
	Path        string          `json:"path"`
	Value       json.RawMessage `json:"value,omitempty"`
	Actor       Actor           `json:"actor"`
}

// PendingStatus is the outbox lifecycle of a locally applied operation.
type PendingStatus string

const (
	PendingQueued   PendingStatus = "pending"
	PendingSending  PendingStatus = "sending"
	PendingFailed   PendingStatus = "failed"
	PendingConflict PendingStatus = "conflict"
)

// PendingOperation is an Op recorded in the outbox. The Op itself is
// immutable once created; only the delivery bookkeeping changes.
type PendingOperation struct {
	Op
	Status         PendingStatus `json:"status"`
	AppliedLocally bool          `json:"applied_locally"`
	RetryCount     int           `json:"retry_count"`
	LastError      string        `json:"last_error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Shadow is the client's durable view of one game: the last known tree plus
// the version token the client believes the server holds.
type Shadow struct {
	GameID       string       `json:"game_id"`
	Tree         *ResultsTree `json:"tree"`
	Version      int64        `json:"version"`
	LastSyncedAt time.Time    `json:"last_synced_at"`
}

// SyncStatus is the observable state of the sync engine.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "SYNCED"
	SyncPending SyncStatus = "PENDING"
	SyncSyncing SyncStatus = "SYNCING"
	SyncError   SyncStatus = "ERROR"
)

// OpConflict is the server's typed rejection of a single op.
type OpConflict struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
}

// BatchResult is the authority's response to an op batch.
type BatchResult struct {
	Applied     []string     `json:"applied"`
	HeadVersion int64        `json:"headVersion"`
	ServerTime  time.Time    `json:"serverTime"`
	Conflicts   []OpConflict `json:"conflicts"`
}
