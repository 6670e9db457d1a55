package adapter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"obd-emissions-monitor/internal/obd"
)

// scriptTransport answers each written command from a canned response
// table, framed the way an ELM327 frames replies: payload, CR, prompt.
type scriptTransport struct {
	responses map[string]string
	writes    []string
	readBuf   bytes.Buffer
	closed    bool
}

func (f *scriptTransport) Write(p []byte) (int, error) {
	cmd := strings.TrimSuffix(string(p), "\r")
	f.writes = append(f.writes, cmd)

	resp, ok := f.responses[cmd]
	if !ok {
		resp = "?"
	}
	f.readBuf.WriteString(resp + "\r\r>")
	return len(p), nil
}

func (f *scriptTransport) Read(p []byte) (int, error) {
	return f.readBuf.Read(p)
}

func (f *scriptTransport) Close() error {
	f.closed = true
	return nil
}

func atScript() map[string]string {
	return map[string]string{
		"ATZ":   "ELM327 v1.5",
		"ATE0":  "OK",
		"ATL0":  "OK",
		"ATSP0": "OK",
	}
}

func TestELM327_InitializeSendsSetupCommands(t *testing.T) {
	ft := &scriptTransport{responses: atScript()}
	elm := NewELM327(ft, zap.NewNop())

	require.NoError(t, elm.Initialize())
	assert.Equal(t, []string{"ATZ", "ATE0", "ATL0", "ATSP0"}, ft.writes)
}

func TestELM327_QueryReturnsPayloadLine(t *testing.T) {
	script := atScript()
	script["010D"] = "41 0D 32"
	ft := &scriptTransport{responses: script}

	elm := NewELM327(ft, zap.NewNop())
	require.NoError(t, elm.Initialize())

	raw, err := elm.Query(obd.PIDVehicleSpeed)
	require.NoError(t, err)
	assert.Equal(t, "41 0D 32", raw)
	assert.InDelta(t, 50, obd.Decode(obd.PIDVehicleSpeed, raw), 1e-9)
}

func TestELM327_QueryStripsEchoAndSearchNoise(t *testing.T) {
	// Before ATE0 takes effect the adapter echoes the command, and the
	// first query after ATSP0 emits protocol-search chatter.
	script := atScript()
	script["010C"] = "010C\rSEARCHING...\r41 0C 1A 2C"
	ft := &scriptTransport{responses: script}

	elm := NewELM327(ft, zap.NewNop())
	require.NoError(t, elm.Initialize())

	raw, err := elm.Query(obd.PIDEngineRPM)
	require.NoError(t, err)
	assert.Equal(t, "41 0C 1A 2C", raw)
	assert.InDelta(t, 1675, obd.Decode(obd.PIDEngineRPM, raw), 1e-9)
}

func TestELM327_NoDataPassesThrough(t *testing.T) {
	script := atScript()
	script["0110"] = "NO DATA"
	ft := &scriptTransport{responses: script}

	elm := NewELM327(ft, zap.NewNop())
	require.NoError(t, elm.Initialize())

	raw, err := elm.Query(obd.PIDMassAirFlow)
	require.NoError(t, err)
	assert.Equal(t, "NO DATA", raw)
	assert.Zero(t, obd.Decode(obd.PIDMassAirFlow, raw))
}

func TestELMSource_ReadDecodesFullRotation(t *testing.T) {
	script := atScript()
	script["010D"] = "410D32"   // 50 km/h
	script["010C"] = "410C1A2C" // 1675 rpm
	script["0110"] = "41100190" // 4.00 g/s
	script["0104"] = "4104FF"   // 100 %
	script["0111"] = "411180"   // ~50.2 %
	ft := &scriptTransport{responses: script}

	src, err := NewELMSource(ft, zap.NewNop())
	require.NoError(t, err)

	r, err := src.Read()
	require.NoError(t, err)
	assert.False(t, r.Timestamp.IsZero())
	assert.InDelta(t, 50, r.SpeedKmh, 1e-9)
	assert.InDelta(t, 1675, r.EngineRPM, 1e-9)
	assert.InDelta(t, 4.00, r.MAFGps, 1e-9)
	assert.InDelta(t, 100, r.EngineLoad, 1e-9)
	assert.InDelta(t, 128.0*100/255, r.ThrottlePct, 1e-9)
	// Live adapters never report fuel rate or lambda; the estimator's
	// fallback chain only sees them from simulated or replayed sources.
	assert.Zero(t, r.FuelRateLh)
	assert.Zero(t, r.Lambda)

	require.NoError(t, src.Close())
	assert.True(t, ft.closed)
}
