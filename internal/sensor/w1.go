package sensor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"codeberg.org/mutker/thermotrend/internal/errors"
)

const DefaultW1Dir = "/sys/bus/w1/devices"

// One-wire family codes of the supported thermometers (DS18S20, DS1822,
// DS18B20, MAX31850, DS28EA00).
var w1Families = []string{"10", "22", "28", "3b", "42"}

// W1 reads a one-wire thermometer through the kernel w1_therm driver.
type W1 struct {
	path string
}

// NewW1 opens deviceID under dir, or the first thermometer found when
// deviceID is empty.
func NewW1(dir, deviceID string) (*W1, error) {
	errFactory := errors.New()

	if deviceID == "" {
		var found []string
		for _, family := range w1Families {
			matches, err := filepath.Glob(filepath.Join(dir, family+"-*"))
			if err != nil {
				return nil, errFactory.Wrap(ErrNoDevice, err)
			}
			found = append(found, matches...)
		}
		if len(found) == 0 {
			return nil, errFactory.WithData(ErrNoDevice, struct{ Dir string }{Dir: dir})
		}
		sort.Strings(found)
		deviceID = filepath.Base(found[0])
	}

	path := filepath.Join(dir, deviceID, "w1_slave")
	if _, err := os.Stat(path); err != nil {
		return nil, errFactory.Wrap(ErrNoDevice, err)
	}

	return &W1{path: path}, nil
}

func (s *W1) Read(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	return parseW1(data)
}

func (*W1) Close() error {
	return nil
}

// parseW1 decodes w1_slave contents:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1(data []byte) (float64, error) {
	errFactory := errors.New()

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) < 2 {
		return 0, errFactory.WithData(ErrParseFailed, string(data))
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, errFactory.WithData(ErrCRCFailed, string(lines[0]))
	}

	i := bytes.Index(lines[1], []byte("t="))
	if i < 0 {
		return 0, errFactory.WithData(ErrParseFailed, string(lines[1]))
	}
	milli, err := strconv.ParseFloat(string(bytes.TrimSpace(lines[1][i+2:])), 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrParseFailed, err)
	}

	return milli / 1000, nil
}
