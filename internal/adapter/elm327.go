package adapter

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"obd-emissions-monitor/internal/models"
	"obd-emissions-monitor/internal/obd"
)

// ELM327 drives a line-oriented command session on a Transport. The
// adapter answers each command with one or more CR-separated lines and a
// trailing '>' prompt.
type ELM327 struct {
	t   Transport
	r   *bufio.Reader
	log *zap.Logger
}

// NewELM327 wraps an open transport. Call Initialize before querying.
func NewELM327(t Transport, log *zap.Logger) *ELM327 {
	return &ELM327{t: t, r: bufio.NewReader(t), log: log}
}

// Initialize resets the adapter and configures the session: no echo, no
// linefeeds, automatic protocol selection.
func (e *ELM327) Initialize() error {
	for _, cmd := range []string{"ATZ", "ATE0", "ATL0", "ATSP0"} {
		if _, err := e.command(cmd); err != nil {
			return fmt.Errorf("init %s: %w", cmd, err)
		}
	}
	return nil
}

// Query sends a service 01 request and returns the raw response line.
// Adapter noise such as "NO DATA" passes through unchanged; the decoder
// turns it into 0.
func (e *ELM327) Query(pid obd.PID) (string, error) {
	resp, err := e.command(pid.Request())
	if err != nil {
		return "", fmt.Errorf("query %s: %w", pid.Request(), err)
	}
	e.log.Debug("pid queried", zap.Stringer("pid", pid), zap.String("raw", resp))
	return resp, nil
}

// Close closes the underlying transport.
func (e *ELM327) Close() error {
	return e.t.Close()
}

// command writes one command and reads up to the next prompt, returning
// the last non-noise line of the response.
func (e *ELM327) command(cmd string) (string, error) {
	if _, err := e.t.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	raw, err := e.r.ReadString('>')
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	return lastResponseLine(raw, cmd), nil
}

// lastResponseLine strips the prompt, the command echo (present until
// ATE0 takes effect), and protocol-search chatter, keeping the final
// payload line.
func lastResponseLine(raw, echo string) string {
	raw = strings.TrimSuffix(raw, ">")
	var last string
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\r' || r == '\n' }) {
		line = strings.TrimSpace(line)
		if line == "" || line == echo || strings.HasPrefix(line, "SEARCHING") {
			continue
		}
		last = line
	}
	return last
}

// ELMSource reads one full PID rotation per tick from a live adapter.
type ELMSource struct {
	elm *ELM327
}

// NewELMSource initializes an ELM327 session on the transport.
func NewELMSource(t Transport, log *zap.Logger) (*ELMSource, error) {
	elm := NewELM327(t, log)
	if err := elm.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize adapter: %w", err)
	}
	return &ELMSource{elm: elm}, nil
}

// Read queries the poll set and decodes each response into one Reading.
// A transport error aborts the tick; decode failures read as zero.
func (s *ELMSource) Read() (models.Reading, error) {
	r := models.Reading{Timestamp: time.Now()}

	for _, pid := range obd.PollSet {
		raw, err := s.elm.Query(pid)
		if err != nil {
			return models.Reading{}, err
		}
		val := obd.Decode(pid, raw)
		switch pid {
		case obd.PIDVehicleSpeed:
			r.SpeedKmh = val
		case obd.PIDEngineRPM:
			r.EngineRPM = val
		case obd.PIDMassAirFlow:
			r.MAFGps = val
		case obd.PIDEngineLoad:
			r.EngineLoad = val
		case obd.PIDThrottle:
			r.ThrottlePct = val
		}
	}

	return r, nil
}

// Close shuts the adapter session down.
func (s *ELMSource) Close() error {
	return s.elm.Close()
}
