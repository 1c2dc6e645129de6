package link

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const DefaultBaud = 9600

// Config selects the serial device. Device may be empty to auto-detect.
type Config struct {
	Device string
	Baud   int
}

// Open opens the configured serial port and returns it with the device path
// actually used.
func Open(cfg Config) (io.ReadWriteCloser, string, error) {
	device := strings.TrimSpace(cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, "", fmt.Errorf("link auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	p, err := openSerial(device, baud)
	if err != nil {
		return nil, device, fmt.Errorf("link open failed device=%s baud=%d: %w", device, baud, err)
	}
	return p, device, nil
}

func autoDetectDevice() string {
	var candidates []string
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			candidates = append(candidates, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
