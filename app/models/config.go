package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// TransportKind selects how a rendered label reaches the printer
type TransportKind string

const (
	TransportDocument  TransportKind = "document"  // PDF file, opened in the OS viewer
	TransportBluetooth TransportKind = "bluetooth" // RFCOMM serial profile
	TransportNetwork   TransportKind = "network"   // raw TCP, usually port 9100
	TransportFile      TransportKind = "file"      // raw ESC/POS bytes appended to a file
)

func (k TransportKind) String() string {
	return string(k)
}

// IsRaw reports whether the transport consumes ESC/POS payloads
func (k TransportKind) IsRaw() bool {
	return k == TransportBluetooth || k == TransportNetwork || k == TransportFile
}

// ParseTransportKind maps a config or request value to a TransportKind
func ParseTransportKind(s string) (TransportKind, error) {
	switch kind := TransportKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case TransportDocument, TransportBluetooth, TransportNetwork, TransportFile:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
	}
}

// PrintTarget is where a print run is delivered
type PrintTarget struct {
	Kind    TransportKind `json:"kind"`
	Address string        `json:"address,omitempty"` // bluetooth hardware address or file path
	Host    string        `json:"host,omitempty"`
	Port    int           `json:"port,omitempty"`
}

// WithDefaults fills empty fields of t from def when both name the same kind
func (t PrintTarget) WithDefaults(def PrintTarget) PrintTarget {
	if t.Kind == "" {
		return def
	}
	if t.Kind != def.Kind {
		return t
	}
	if t.Address == "" {
		t.Address = def.Address
	}
	if t.Host == "" {
		t.Host = def.Host
	}
	if t.Port == 0 {
		t.Port = def.Port
	}
	return t
}

// Validate checks the destination fields required by the target kind
func (t PrintTarget) Validate() error {
	switch t.Kind {
	case TransportDocument:
		return nil
	case TransportBluetooth:
		if _, err := ParseBluetoothAddress(t.Address); err != nil {
			return &ValidationError{Field: "address", Message: err.Error()}
		}
	case TransportNetwork:
		if strings.TrimSpace(t.Host) == "" {
			return &ValidationError{Field: "host", Message: "printer host is required"}
		}
		if t.Port <= 0 || t.Port > 65535 {
			return &ValidationError{Field: "port", Message: fmt.Sprintf("port must be between 1 and 65535, got %d", t.Port)}
		}
	case TransportFile:
		if strings.TrimSpace(t.Address) == "" {
			return &ValidationError{Field: "address", Message: "output file path is required"}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown transport kind %q", t.Kind)}
	}
	return nil
}

// Destination renders the target for logs and error messages
func (t PrintTarget) Destination() string {
	switch t.Kind {
	case TransportNetwork:
		return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	case TransportDocument:
		return "pdf"
	default:
		return t.Address
	}
}

// ParseBluetoothAddress parses "AA:BB:CC:DD:EE:FF" into its six bytes,
// most significant first.
func ParseBluetoothAddress(s string) ([6]byte, error) {
	var addr [6]byte
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("bluetooth address %q must have six colon-separated octets", s)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return addr, fmt.Errorf("bluetooth address %q has invalid octet %q", s, p)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}
