package nodenet

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by nodenet operations. Callers should test with
// errors.Is since most are wrapped with the offending uid or name.
var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrNodespaceNotFound = errors.New("nodespace not found")
	ErrUnknownNodetype   = errors.New("unknown nodetype")
	ErrUnknownSlot       = errors.New("unknown slot")
	ErrUnknownGate       = errors.New("unknown gate")
	ErrLockHeld          = errors.New("lock already held")
	ErrVersionMismatch   = errors.New("nodenet data version mismatch")
	ErrGroupNotFound     = errors.New("group not found")
	ErrRootNodespace     = errors.New("root nodespace cannot be modified")
	ErrNoWorld           = errors.New("no world adapter bound")
)

// NodeFunctionError reports a failure inside a node function. It aborts the
// step that was running and leaves the nodenet inactive.
type NodeFunctionError struct {
	NodeUID string
	Sheaf   SheafID
	Err     error
}

func (e *NodeFunctionError) Error() string {
	return fmt.Sprintf("node function of %s failed in sheaf %s: %v", e.NodeUID, e.Sheaf, e.Err)
}

func (e *NodeFunctionError) Unwrap() error { return e.Err }
