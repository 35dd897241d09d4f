// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/stereo_player/internal/orientation"
)

// SerialSource reads $VRQTN sentences from an external head tracker on a
// serial line. Samples are forwarded as they arrive; the requested period
// is only a hint to the sender.
type SerialSource struct {
	portName string
	baud     uint
	open     func() (io.ReadCloser, error)

	mu       sync.Mutex
	port     io.ReadCloser
	done     chan struct{}
	stopping atomic.Bool
}

// NewSerialSource returns a source bound to a serial device.
func NewSerialSource(portName string, baud uint) *SerialSource {
	s := &SerialSource{portName: portName, baud: baud}
	s.open = s.openPort
	return s
}

// NewReaderSource reads sentences from an arbitrary stream.
func NewReaderSource(r io.ReadCloser) *SerialSource {
	return &SerialSource{portName: "stream", open: func() (io.ReadCloser, error) { return r, nil }}
}

func (s *SerialSource) openPort() (io.ReadCloser, error) {
	return OpenSerialPort(s.portName, s.baud)
}

// OpenSerialPort opens portName as 8N1 at baud. Failures wrap
// orientation.ErrNoSensor.
func OpenSerialPort(portName string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: serial port %s: %v", orientation.ErrNoSensor, portName, err)
	}
	log.Printf("serial: opened %s at %d baud", portName, baud)
	return port, nil
}

// WriteRotationSentence writes rv to w as one CRLF-terminated $VRQTN line.
func WriteRotationSentence(w io.Writer, rv orientation.RotationVector) error {
	_, err := io.WriteString(w, FormatRotationSentence(rv.Values)+"\r\n")
	return err
}

// Start opens the port and begins forwarding parsed samples to fn.
func (s *SerialSource) Start(_ time.Duration, fn func(orientation.RotationVector)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	port, err := s.open()
	if err != nil {
		return err
	}
	s.port = port
	s.done = make(chan struct{})
	s.stopping.Store(false)
	go s.readLoop(port, fn, s.done)
	return nil
}

func (s *SerialSource) readLoop(r io.Reader, fn func(orientation.RotationVector), done chan struct{}) {
	defer close(done)

	reader := bufio.NewReader(r)
	bad := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Stop closing the port surfaces here as a read error.
			if err != io.EOF && !s.stopping.Load() {
				log.Printf("serial source: read error on %s: %v", s.portName, err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		values, err := ParseRotationSentence(line)
		if err != nil {
			// Partial lines are common right after the port opens.
			bad++
			if bad%100 == 1 {
				log.Printf("serial source: skipping bad sentence %q: %v", line, err)
			}
			continue
		}
		fn(orientation.RotationVector{Values: values, Timestamp: time.Now().UnixNano()})
	}
}

// Stop closes the port, which unblocks the reader.
func (s *SerialSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return
	}
	s.stopping.Store(true)
	if err := s.port.Close(); err != nil {
		log.Printf("serial source: close %s: %v", s.portName, err)
	}
	<-s.done
	s.port, s.done = nil, nil
}
