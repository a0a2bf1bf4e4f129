package sensor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/iceman/internal/errors"
)

const (
	DefaultDevicesDir = "/sys/bus/w1/devices"
	// DS18B20 family code
	DefaultDevicePrefix = "28-"

	slaveFile = "w1_slave"
)

// Probe reads a one-wire temperature probe through the w1 bus driver.
type Probe struct {
	DevicesDir string
	Prefix     string
}

// NewProbe returns a Probe reading the first device matching prefix under dir.
func NewProbe(dir, prefix string) *Probe {
	if dir == "" {
		dir = DefaultDevicesDir
	}
	if prefix == "" {
		prefix = DefaultDevicePrefix
	}

	return &Probe{DevicesDir: dir, Prefix: prefix}
}

// Read locates the device on every call so a probe that is replaced while
// the process runs is picked up without a restart.
func (p *Probe) Read() (Temperature, error) {
	errFactory := errors.New()

	dev, err := p.findDevice()
	if err != nil {
		return 0, err
	}

	content, err := os.ReadFile(filepath.Join(dev, slaveFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, errFactory.Wrap(errors.ErrSensorNotFound, err)
		}
		return 0, errFactory.Wrap(errors.ErrSensorIO, err)
	}

	return ParseProbe(string(content))
}

func (p *Probe) findDevice() (string, error) {
	errFactory := errors.New()

	entries, err := os.ReadDir(p.DevicesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errFactory.Wrap(errors.ErrSensorNotFound, err)
		}
		return "", errFactory.Wrap(errors.ErrSensorIO, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), p.Prefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", errFactory.WithData(errors.ErrSensorNotFound, p.DevicesDir)
	}
	sort.Strings(names)

	return filepath.Join(p.DevicesDir, names[0]), nil
}

// ParseProbe parses w1_slave content:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The value is the token after the last "t=" on the line following the CRC
// line, or on the second line if no CRC line is present.
func ParseProbe(content string) (Temperature, error) {
	errFactory := errors.New()

	lines := strings.Split(content, "\n")
	idx := 1
	for i, line := range lines {
		if !strings.Contains(line, "crc=") {
			continue
		}
		if !strings.HasSuffix(strings.TrimSpace(line), "YES") {
			return 0, errFactory.WithData(errors.ErrMalformedData, "crc check failed")
		}
		idx = i + 1
		break
	}

	if idx >= len(lines) {
		return 0, errFactory.WithMessage(errors.ErrMalformedData, "Unexpected data format")
	}

	line := lines[idx]
	pos := strings.LastIndex(line, "t=")
	if pos < 0 {
		return 0, errFactory.WithMessage(errors.ErrMalformedData, "Temperature value not found")
	}

	milli, err := parseMilliCelsius(line[pos+len("t="):])
	if err != nil {
		return 0, err
	}

	return FromMilliCelsius(milli), nil
}
