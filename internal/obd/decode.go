package obd

import (
	"encoding/hex"
	"strings"
)

// Response header: mode echo (0x41) plus PID echo, hex-encoded.
const headerHexChars = 4

// Decode converts a raw service 01 response for the queried PID into a
// physical value using the standardized formulas:
//
//	0x04  engine load     A * 100 / 255       %
//	0x0C  engine speed    (A*256 + B) / 4     rpm
//	0x0D  vehicle speed   A                   km/h
//	0x10  mass air flow   (A*256 + B) / 100   g/s
//	0x11  throttle        A * 100 / 255       %
//
// The raw string may contain whitespace and mixed case. The fixed
// four-character header (mode + PID echo) is discarded before decoding.
// Decode never fails: malformed, short, or unknown input yields 0, which
// callers treat as "no data".
func Decode(pid PID, raw string) float64 {
	data := dataBytes(raw)

	switch pid {
	case PIDVehicleSpeed:
		if len(data) < 1 {
			return 0
		}
		return float64(data[0])

	case PIDEngineRPM:
		if len(data) < 2 {
			return 0
		}
		return (float64(data[0])*256 + float64(data[1])) / 4

	case PIDMassAirFlow:
		if len(data) < 2 {
			return 0
		}
		return (float64(data[0])*256 + float64(data[1])) / 100

	case PIDEngineLoad, PIDThrottle:
		if len(data) < 1 {
			return 0
		}
		return float64(data[0]) * 100 / 255

	default:
		return 0
	}
}

// dataBytes normalizes a raw response (strip whitespace, uppercase), drops
// the mode+PID echo header, and hex-decodes the remaining data bytes.
// Returns nil whenever the response does not survive that path.
func dataBytes(raw string) []byte {
	cleaned := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(cleaned) <= headerHexChars {
		return nil
	}
	data, err := hex.DecodeString(cleaned[headerHexChars:])
	if err != nil {
		return nil
	}
	return data
}
