package pingpong

import (
	"fmt"
	"strings"
)

// Role is the behavior of a node in the connectivity test. It is fixed for the
// lifetime of a Machine.
type Role int

// The roles.
const (
	// RolePing transmits a ping each time the watchdog expires.
	RolePing Role = iota

	// RolePong replies to every ping it hears.
	RolePong
)

func (r Role) String() string {
	if r == RolePong {
		return "pong"
	}

	return "ping"
}

// ParseRole returns the role named s.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "ping":
		return RolePing, nil
	case "pong":
		return RolePong, nil
	}

	return RolePing, fmt.Errorf("unknown role '%s'", s)
}

// State is the state of the link.
type State int

// The link states.
const (
	// StateListening means a continuous receive window is armed.
	StateListening State = iota

	// StateAwaitingTxAck means receive was halted and a transmit command is
	// waiting for its acknowledgement.
	StateAwaitingTxAck

	// StateTransmitting means a transmission was acknowledged, and its result
	// is awaited.
	StateTransmitting
)

var stateNames = map[State]string{
	StateListening:     "listening",
	StateAwaitingTxAck: "awaiting-tx-ack",
	StateTransmitting:  "transmitting",
}

func (s State) String() string {
	return stateNames[s]
}
