package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownFormulas(t *testing.T) {
	tests := []struct {
		name string
		pid  PID
		raw  string
		want float64
	}{
		{
			name: "vehicle speed single byte",
			pid:  PIDVehicleSpeed,
			raw:  "410D32",
			want: 50,
		},
		{
			name: "engine rpm two bytes",
			pid:  PIDEngineRPM,
			raw:  "410C1A2C",
			want: 1675, // (26*256 + 44) / 4
		},
		{
			name: "maf two bytes",
			pid:  PIDMassAirFlow,
			raw:  "41100190",
			want: 4.00, // (256 + 144) / 100
		},
		{
			name: "engine load percent",
			pid:  PIDEngineLoad,
			raw:  "4104FF",
			want: 100,
		},
		{
			name: "throttle percent",
			pid:  PIDThrottle,
			raw:  "411180",
			want: 128.0 * 100 / 255,
		},
		{
			name: "zero speed",
			pid:  PIDVehicleSpeed,
			raw:  "410D00",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Decode(tt.pid, tt.raw), 1e-9)
		})
	}
}

func TestDecode_NormalizesWhitespaceAndCase(t *testing.T) {
	tests := []struct {
		name string
		pid  PID
		raw  string
		want float64
	}{
		{name: "spaced bytes", pid: PIDVehicleSpeed, raw: "41 0D 32", want: 50},
		{name: "lowercase", pid: PIDEngineRPM, raw: "410c1a2c", want: 1675},
		{name: "mixed case and spacing", pid: PIDMassAirFlow, raw: "41 10 01 90", want: 4.00},
		{name: "tabs and crlf", pid: PIDVehicleSpeed, raw: "\t41 0D 32\r\n", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Decode(tt.pid, tt.raw), 1e-9)
		})
	}
}

func TestDecode_MalformedYieldsZero(t *testing.T) {
	tests := []struct {
		name string
		pid  PID
		raw  string
	}{
		{name: "empty", pid: PIDVehicleSpeed, raw: ""},
		{name: "header only", pid: PIDVehicleSpeed, raw: "410D"},
		{name: "rpm missing second byte", pid: PIDEngineRPM, raw: "410C1A"},
		{name: "maf missing second byte", pid: PIDMassAirFlow, raw: "411001"},
		{name: "odd hex residue", pid: PIDVehicleSpeed, raw: "410D3"},
		{name: "non-hex payload", pid: PIDVehicleSpeed, raw: "NO DATA"},
		{name: "adapter searching noise", pid: PIDEngineRPM, raw: "SEARCHING..."},
		{name: "garbage", pid: PIDMassAirFlow, raw: "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Zero(t, Decode(tt.pid, tt.raw))
		})
	}
}

func TestDecode_UnknownPIDYieldsZero(t *testing.T) {
	// Coolant temperature: well-formed response, but the PID is outside the
	// decode table, so the defined default applies.
	assert.Zero(t, Decode(PID(0x05), "41057B"))
	assert.Zero(t, Decode(PID(0xFF), "41FF1234"))
}

func TestPID_Request(t *testing.T) {
	assert.Equal(t, "010D", PIDVehicleSpeed.Request())
	assert.Equal(t, "010C", PIDEngineRPM.Request())
	assert.Equal(t, "0110", PIDMassAirFlow.Request())
	assert.Equal(t, "0104", PIDEngineLoad.Request())
	assert.Equal(t, "0111", PIDThrottle.Request())
}

func TestPID_Metadata(t *testing.T) {
	assert.Equal(t, "Vehicle speed", PIDVehicleSpeed.Name())
	assert.Equal(t, "km/h", PIDVehicleSpeed.Unit())
	assert.Equal(t, "g/s", PIDMassAirFlow.Unit())
	assert.Equal(t, "Unknown PID", PID(0xAB).Name())
	assert.Equal(t, "", PID(0xAB).Unit())
	assert.Equal(t, "0D", PIDVehicleSpeed.String())
}

func TestParsePID(t *testing.T) {
	for _, in := range []string{"0D", "0d", "0x0D", " 0d "} {
		pid, err := ParsePID(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, PIDVehicleSpeed, pid)
	}

	_, err := ParsePID("zz")
	assert.Error(t, err)
	_, err = ParsePID("1FF") // out of byte range
	assert.Error(t, err)
}
