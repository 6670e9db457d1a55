// Package adapter talks to OBD-II adapters over serial or TCP and turns
// their raw responses into normalized readings. It also provides a
// simulated source for running without hardware.
//
// Device discovery and reconnect handling are out of scope: the caller
// names a port or address, and transport errors surface directly.
package adapter

import (
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

// Transport is a byte stream to an OBD adapter.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

const dialTimeout = 10 * time.Second

type serialTransport struct {
	port serial.Port
}

func (s *serialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialTransport) Close() error                { return s.port.Close() }

// DialSerial opens a serial (USB or RFCOMM) adapter at 8N1.
func DialSerial(portName string, baud int) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &serialTransport{port: port}, nil
}

// DialTCP connects to a WiFi adapter, typically 192.168.0.10:35000.
func DialTCP(addr string) (Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
