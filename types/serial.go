package types

// ------------------------
// Console serial port
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

// SerialConfig describes the console UART. Zero fields take board defaults.
type SerialConfig struct {
	Baud     uint32 `json:"baud"`
	DataBits uint8  `json:"data_bits"`
	StopBits uint8  `json:"stop_bits"`
	Parity   Parity `json:"parity"`
	// Power-of-two RX ring size (bytes).
	RXSize int `json:"rx_size,omitempty"`
}

// DefaultSerial is 115200 8N1 with a 256 byte receive ring.
func DefaultSerial() SerialConfig {
	return SerialConfig{Baud: 115200, DataBits: 8, StopBits: 1, Parity: ParityNone, RXSize: 256}
}
