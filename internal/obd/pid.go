package obd

import (
	"fmt"
	"strconv"
	"strings"
)

// PID identifies an OBD-II service 01 ("show current data") parameter.
type PID byte

// Parameters the monitor queries. Responses for any other PID decode to zero.
const (
	PIDEngineLoad   PID = 0x04
	PIDEngineRPM    PID = 0x0C
	PIDVehicleSpeed PID = 0x0D
	PIDMassAirFlow  PID = 0x10
	PIDThrottle     PID = 0x11
)

// service01 is the OBD-II mode byte for live data requests.
const service01 = 0x01

// PollSet is the query rotation for one tick, in the order the poller
// issues them.
var PollSet = []PID{
	PIDVehicleSpeed,
	PIDEngineRPM,
	PIDMassAirFlow,
	PIDEngineLoad,
	PIDThrottle,
}

// Request returns the service 01 query string for the PID, e.g. "010D".
func (p PID) Request() string {
	return fmt.Sprintf("%02X%02X", service01, byte(p))
}

// String returns the two-digit hex code of the PID.
func (p PID) String() string {
	return fmt.Sprintf("%02X", byte(p))
}

// Name returns the parameter name for display and logging.
func (p PID) Name() string {
	switch p {
	case PIDEngineLoad:
		return "Calculated engine load"
	case PIDEngineRPM:
		return "Engine speed"
	case PIDVehicleSpeed:
		return "Vehicle speed"
	case PIDMassAirFlow:
		return "MAF air flow rate"
	case PIDThrottle:
		return "Throttle position"
	default:
		return "Unknown PID"
	}
}

// Unit returns the physical unit Decode reports for the PID, or "" for
// PIDs outside the decode table.
func (p PID) Unit() string {
	switch p {
	case PIDEngineLoad, PIDThrottle:
		return "%"
	case PIDEngineRPM:
		return "rpm"
	case PIDVehicleSpeed:
		return "km/h"
	case PIDMassAirFlow:
		return "g/s"
	default:
		return ""
	}
}

// ParsePID parses a two-digit hex PID code such as "0D", "0x0d" or "10".
func ParsePID(s string) (PID, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(cleaned, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid PID %q: %w", s, err)
	}
	return PID(v), nil
}
