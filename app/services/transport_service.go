package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"LabelPrinter/app/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SerialPortProfileUUID identifies the Bluetooth serial port profile
// spoken by thermal label printers.
var SerialPortProfileUUID = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

const (
	DefaultNetworkTimeout   = 5 * time.Second
	DefaultBluetoothTimeout = 10 * time.Second
	DefaultRFCOMMChannel    = 1
)

// PrintTransport delivers one finished ESC/POS payload to a destination.
// Each call is a single connect-send-disconnect exchange with no retry;
// every failure is returned as a *models.TransportError.
type PrintTransport interface {
	Kind() models.TransportKind
	Send(ctx context.Context, target models.PrintTarget, payload []byte) error
}

// TransportSet holds the transports available to the orchestrator
type TransportSet struct {
	mu         sync.RWMutex
	transports map[models.TransportKind]PrintTransport
}

// NewTransportSet registers the given transports by kind
func NewTransportSet(transports ...PrintTransport) *TransportSet {
	s := &TransportSet{transports: make(map[models.TransportKind]PrintTransport)}
	for _, t := range transports {
		s.Register(t)
	}
	return s
}

// Register adds or replaces the transport for t.Kind()
func (s *TransportSet) Register(t PrintTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[t.Kind()] = t
}

// Get returns the transport for kind
func (s *TransportSet) Get(kind models.TransportKind) (PrintTransport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transports[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTransportUnavailable, kind)
	}
	return t, nil
}

func transportFailure(target models.PrintTarget, reason string, cause error) *models.TransportError {
	if cause != nil && reason == "" {
		reason = cause.Error()
	}
	return &models.TransportError{
		Kind:        target.Kind,
		Destination: target.Destination(),
		Reason:      reason,
		Cause:       cause,
	}
}

// NetworkTransport sends payloads over raw TCP (JetDirect-style port 9100)
type NetworkTransport struct {
	timeout time.Duration
	logger  *zap.Logger
	dialer  *net.Dialer
}

// NewNetworkTransport creates a TCP transport bounded by timeout for both
// connect and send.
func NewNetworkTransport(timeout time.Duration, logger *zap.Logger) *NetworkTransport {
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkTransport{
		timeout: timeout,
		logger:  logger,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

// Kind implements PrintTransport
func (t *NetworkTransport) Kind() models.TransportKind {
	return models.TransportNetwork
}

// Send connects to target.Host:target.Port, writes payload and disconnects
func (t *NetworkTransport) Send(ctx context.Context, target models.PrintTarget, payload []byte) error {
	if target.Host == "" {
		return transportFailure(target, "no printer host configured", nil)
	}
	if target.Port <= 0 || target.Port > 65535 {
		return transportFailure(target, fmt.Sprintf("invalid port %d", target.Port), nil)
	}
	address := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return transportFailure(target, "", fmt.Errorf("failed to connect to network printer at %s: %w", address, err))
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return transportFailure(target, "", fmt.Errorf("set write deadline: %w", err))
	}

	if _, err := conn.Write(payload); err != nil {
		return transportFailure(target, "", fmt.Errorf("write to network printer at %s: %w", address, err))
	}

	t.logger.Debug("payload sent", zap.String("address", address), zap.Int("bytes", len(payload)))
	return nil
}

// FileTransport appends payloads to a local file. It stands in for a
// printer when testing layouts without hardware.
type FileTransport struct {
	logger *zap.Logger
}

// NewFileTransport creates a file transport
func NewFileTransport(logger *zap.Logger) *FileTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileTransport{logger: logger}
}

// Kind implements PrintTransport
func (t *FileTransport) Kind() models.TransportKind {
	return models.TransportFile
}

// Send appends payload to the file at target.Address
func (t *FileTransport) Send(ctx context.Context, target models.PrintTarget, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return transportFailure(target, "", err)
	}
	if target.Address == "" {
		return transportFailure(target, "no output file configured", nil)
	}

	if err := os.MkdirAll(filepath.Dir(target.Address), 0755); err != nil {
		return transportFailure(target, "", fmt.Errorf("failed to create output directory: %w", err))
	}

	f, err := os.OpenFile(target.Address, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return transportFailure(target, "", fmt.Errorf("failed to open output file at %s: %w", target.Address, err))
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return transportFailure(target, "", fmt.Errorf("write output file: %w", err))
	}
	if err := f.Close(); err != nil {
		return transportFailure(target, "", fmt.Errorf("close output file: %w", err))
	}

	t.logger.Debug("payload written", zap.String("path", target.Address), zap.Int("bytes", len(payload)))
	return nil
}

// BluetoothTransport sends payloads over an RFCOMM serial-profile socket
type BluetoothTransport struct {
	channel uint8
	timeout time.Duration
	logger  *zap.Logger

	send func(ctx context.Context, addr [6]byte, channel uint8, payload []byte) error
}

// NewBluetoothTransport creates an RFCOMM transport on channel, bounded by
// timeout for connect and send.
func NewBluetoothTransport(channel int, timeout time.Duration, logger *zap.Logger) *BluetoothTransport {
	if channel <= 0 || channel > 30 {
		channel = DefaultRFCOMMChannel
	}
	if timeout <= 0 {
		timeout = DefaultBluetoothTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BluetoothTransport{
		channel: uint8(channel),
		timeout: timeout,
		logger:  logger,
		send:    rfcommSend,
	}
}

// Kind implements PrintTransport
func (t *BluetoothTransport) Kind() models.TransportKind {
	return models.TransportBluetooth
}

// Send resolves target.Address, connects, writes payload and disconnects
func (t *BluetoothTransport) Send(ctx context.Context, target models.PrintTarget, payload []byte) error {
	addr, err := models.ParseBluetoothAddress(target.Address)
	if err != nil {
		return transportFailure(target, "device not found: "+err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.send(ctx, addr, t.channel, payload); err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("no response from %s within %s", target.Address, t.timeout)
		}
		return transportFailure(target, reason, err)
	}

	t.logger.Debug("payload sent",
		zap.String("address", target.Address),
		zap.Uint8("channel", t.channel),
		zap.String("profile", SerialPortProfileUUID.String()),
		zap.Int("bytes", len(payload)))
	return nil
}
