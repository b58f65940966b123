package domain

import "time"

// Run is one execution of the secure-and-delegate workflow.
type Run struct {
	RunID        string
	Netuid       int
	TargetHotkey string
	Holding      string // holding coldkey
	MinerCount   int
	StartedAt    time.Time
	FinishedAt   *time.Time // nil while running
}

// Action kinds recorded in the journal.
const (
	ActionTransfer = "TRANSFER"
	ActionMove     = "MOVE"
	ActionUnlock   = "UNLOCK"
)

// Action results recorded in the journal.
const (
	ActionResultOK      = "OK"
	ActionResultFailed  = "FAILED"
	ActionResultSkipped = "SKIPPED"
)

// ActionRecord is an append-only audit entry for one attempted chain action.
type ActionRecord struct {
	ActionID     string // deterministic hash, see idhash.ComputeActionID
	RunID        string
	Seq          int
	Wallet       string
	Kind         string
	Signer       string // signer coldkey
	OriginHotkey string
	DestHotkey   string
	DestColdkey  string
	Netuid       int
	AmountRao    uint64
	Result       string
	Error        string
	RecordedAt   time.Time
}

// Snapshot phases.
const (
	SnapshotBefore = "BEFORE"
	SnapshotAfter  = "AFTER"
)

// StakeSnapshot is a stake position observed during a run.
type StakeSnapshot struct {
	RunID      string
	Wallet     string
	Phase      string
	Coldkey    string
	Hotkey     string
	Netuid     int
	StakeRao   uint64
	ObservedAt time.Time
}
