// Package connector turns a registry of data sources into a live BLE session.
//
// Connect selects a peripheral, opens one GATT connection and, for every
// descriptor independently, resolves the service and characteristic, enables
// notifications and attaches a consumer that decodes each payload into the
// descriptor's sink. A failure in one descriptor is recorded in its Result and
// never affects another.
//
//	Idle → Requesting → Connected → Subscribing → Streaming → Closed
//	         │              │
//	         └──── Failed ◄─┘
package connector

// State is the connector lifecycle state
type State int32

const (
	Idle State = iota
	Requesting
	Connected
	Subscribing
	Streaming
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Connected:
		return "connected"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stage is a step of a descriptor subscription chain
type Stage string

const (
	StageService        Stage = "service"
	StageCharacteristic Stage = "characteristic"
	StageNotify         Stage = "notify"
	StageStreaming      Stage = "streaming" // the chain completed
)
