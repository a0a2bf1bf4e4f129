package sensor

import (
	"io/fs"
	"os"

	"codeberg.org/mutker/iceman/internal/errors"
)

const DefaultBoardPath = "/sys/class/thermal/thermal_zone0/temp"

// Board reads the SoC thermal zone.
type Board struct {
	Path string
}

func NewBoard(path string) *Board {
	if path == "" {
		path = DefaultBoardPath
	}

	return &Board{Path: path}
}

func (b *Board) Read() (Temperature, error) {
	errFactory := errors.New()

	content, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, errFactory.Wrap(errors.ErrSensorNotFound, err)
		}
		return 0, errFactory.Wrap(errors.ErrSensorIO, err)
	}

	return ParseBoard(string(content))
}

// ParseBoard parses a thermal zone file holding millidegrees Celsius.
func ParseBoard(content string) (Temperature, error) {
	milli, err := parseMilliCelsius(content)
	if err != nil {
		return 0, err
	}

	return FromMilliCelsius(milli), nil
}
