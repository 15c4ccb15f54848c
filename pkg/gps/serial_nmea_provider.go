package gps

import (
	"bufio"
	"errors"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// knots to km/h
const knotsToKmh = 1.852

// SerialNMEAProvider reads position fixes from a GPS receiver connected
// via serial port. RMC sentences supply coordinates, speed and course;
// the satellite count is carried over from the most recent GGA sentence.
type SerialNMEAProvider struct {
	portName string
	baudRate int

	port     *serial.Port
	scanner  *bufio.Scanner
	lastSats int
}

// NewSerialNMEAProvider creates a new instance of SerialNMEAProvider
// with the specified port and baud rate. The port is opened on first
// use.
func NewSerialNMEAProvider(portName string, baudRate int) *SerialNMEAProvider {
	return &SerialNMEAProvider{
		portName: portName,
		baudRate: baudRate,
	}
}

// GetPosition blocks until the receiver produces a valid RMC fix.
func (p *SerialNMEAProvider) GetPosition() (Position, error) {
	if p.port == nil {
		port, err := serial.OpenPort(&serial.Config{Name: p.portName, Baud: p.baudRate})
		if err != nil {
			return Position{}, err
		}
		p.port = port
		p.scanner = bufio.NewScanner(port)
	}

	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			// Garbled lines are normal on serial links, keep reading.
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			p.lastSats = int(s.NumSatellites)
		case nmea.RMC:
			if s.Validity != nmea.ValidRMC {
				continue
			}
			return Position{
				Lat:     s.Latitude,
				Lng:     s.Longitude,
				Speed:   s.Speed * knotsToKmh,
				Heading: int(s.Course),
				Sats:    p.lastSats,
			}, nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return Position{}, err
	}
	return Position{}, errors.New("no valid GPS data found")
}

// Close releases the serial port.
func (p *SerialNMEAProvider) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}
