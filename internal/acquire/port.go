package acquire

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the byte-stream endpoint the source reads from. Reads return
// (0, nil) on timeout so the caller never blocks longer than the configured
// read timeout.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// PortInfo describes one enumerated serial endpoint.
type PortInfo struct {
	Name        string
	Description string
	VID         string
	PID         string
}

// Opener opens a named endpoint at the given line rate. Injectable so tests
// can substitute fake transports.
type Opener func(name string, baudrate int, timeout time.Duration) (Port, error)

// Enumerator lists candidate endpoints for auto-detection.
type Enumerator func() ([]PortInfo, error)

// USB vendor IDs of the supported acquisition boards.
var knownVIDs = map[string]struct{}{
	"2341": {}, // Arduino
	"1A86": {}, // CH340
	"0403": {}, // FTDI
}

var knownDescriptions = []string{"arduino", "ch340", "ftdi", "usb serial"}

// settleDelay gives the microcontroller time to come back after the DTR
// toggle resets it on open.
const settleDelay = 2 * time.Second

// OpenSerial opens a real serial port with 8-N-1 framing, waits out the
// device reset and drops whatever partial line is sitting in the input
// buffer.
func OpenSerial(name string, baudrate int, timeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("acquire: opening %s: %w", name, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("acquire: setting read timeout on %s: %w", name, err)
	}

	time.Sleep(settleDelay)
	if err := p.ResetInputBuffer(); err != nil {
		slog.Warn("acquire: could not flush input buffer", "port", name, "error", err)
	}
	return p, nil
}

// EnumeratePorts lists the detailed USB serial endpoints on this host.
func EnumeratePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("acquire: enumerating ports: %w", err)
	}
	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		infos = append(infos, PortInfo{
			Name:        d.Name,
			Description: d.Product,
			VID:         strings.ToUpper(d.VID),
			PID:         strings.ToUpper(d.PID),
		})
	}
	return infos, nil
}

// detectPort picks the first enumerated endpoint that matches a known
// vendor ID or description substring.
func detectPort(enumerate Enumerator) (string, error) {
	ports, err := enumerate()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if _, ok := knownVIDs[strings.ToUpper(p.VID)]; ok {
			slog.Info("acquire: device detected by VID", "port", p.Name, "vid", p.VID, "pid", p.PID)
			return p.Name, nil
		}
		desc := strings.ToLower(p.Description)
		for _, kw := range knownDescriptions {
			if strings.Contains(desc, kw) {
				slog.Info("acquire: device detected by description", "port", p.Name, "description", p.Description)
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("acquire: no matching device among %d ports", len(ports))
}
