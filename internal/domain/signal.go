package domain

import "time"

const (
	// ChannelPositions is the SignalBus channel carrying PositionEvent payloads.
	ChannelPositions = "positions"
	// StreamPositions is the durable stream mirroring ChannelPositions.
	StreamPositions = "stream:positions"
)

// PositionEventType classifies a lifecycle change.
type PositionEventType string

const (
	PositionEventOpened     PositionEventType = "opened"
	PositionEventSold       PositionEventType = "sold"
	PositionEventClosed     PositionEventType = "closed"
	PositionEventRollback   PositionEventType = "rollback"
	PositionEventUnresolved PositionEventType = "unresolved"
)

// PositionEvent is published whenever the engine changes a position.
type PositionEvent struct {
	Type      PositionEventType `json:"type"`
	Owner     string            `json:"owner"`
	Asset     string            `json:"asset"`
	Status    PositionStatus    `json:"status"`
	Signature string            `json:"signature,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Quantity  uint64            `json:"quantity"`
	Capital   uint64            `json:"capital"`
	Profit    int64             `json:"profit,omitempty"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}
