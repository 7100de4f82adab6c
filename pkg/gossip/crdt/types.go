package crdt

import (
	"github.com/raj/lww/pkg/types"
)

type messageType string

const (
	msgAdd    messageType = "add"
	msgRemove messageType = "remove"
	msgState  messageType = "state"
)

// wireMsg is what replicas exchange over memberlist. Op messages carry the
// full timestamp history of one element, state messages a whole snapshot.
type wireMsg struct {
	Type       messageType          `json:"type"`
	NodeID     string               `json:"nodeId"`
	Value      string               `json:"value,omitempty"`
	Timestamps []int64              `json:"timestamps,omitempty"`
	State      *types.StateSnapshot `json:"state,omitempty"`
}
