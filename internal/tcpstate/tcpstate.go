// Package tcpstate implements the per-half-connection TCP state machine
// used to determine flow validity and termination. Two independent
// machines track a TCP flow: one watching the "f" (forward) direction,
// one watching "b" (backward).
package tcpstate

// State is a TCP half-connection state.
type State uint8

const (
	Start State = iota
	Syn
	SynAck
	Established
	Fin
	Closed
)

func (s State) String() string {
	switch s {
	case Start:
		return "START"
	case Syn:
		return "SYN"
	case SynAck:
		return "SYNACK"
	case Established:
		return "ESTABLISHED"
	case Fin:
		return "FIN"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Flags is the 8-bit TCP flag byte: FIN=0x01, SYN=0x02, RST=0x04,
// PSH=0x08, ACK=0x10, URG=0x20.
type Flags uint8

const (
	FIN Flags = 0x01
	SYN Flags = 0x02
	RST Flags = 0x04
	PSH Flags = 0x08
	ACK Flags = 0x10
	URG Flags = 0x20
)

// Has reports whether bit is set in f.
func (f Flags) Has(bit Flags) bool { return f&bit == bit }

// Direction distinguishes the two halves of a TCP flow.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// Transition computes the next state given the current state, the flag
// byte of the observed packet, the direction that machine watches (dir),
// and the direction the current packet travelled in (pdir). A single
// pure dispatch is enough to express a six-state machine; no subtype
// polymorphism is needed.
//
// RST always forces Closed. FIN forces Fin only when the packet travelled
// in the direction this machine watches. Otherwise the state-specific
// table below applies; anything not matched is a self-loop.
func Transition(current State, flags Flags, dir, pdir Direction) State {
	if flags.Has(RST) {
		return Closed
	}
	if flags.Has(FIN) && dir == pdir {
		return Fin
	}
	switch current {
	case Start:
		if flags.Has(SYN) && dir == pdir {
			return Syn
		}
	case Syn:
		if flags.Has(SYN) && flags.Has(ACK) && dir != pdir {
			return SynAck
		}
	case SynAck:
		if flags.Has(ACK) && dir == pdir {
			return Established
		}
	case Established:
		// no transition
	case Fin:
		if flags.Has(ACK) && dir != pdir {
			return Closed
		}
	case Closed:
		// terminal
	}
	return current
}
