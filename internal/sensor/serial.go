package sensor

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"go.bug.st/serial"
)

const (
	DefaultBaud        = 9600
	serialReadTimeout  = 500 * time.Millisecond
	serialLineDeadline = 5 * time.Second
	maxLineLength      = 256
)

var readingPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// port is the subset of serial.Port the sensor uses.
type port interface {
	Read(p []byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

// Serial reads a device that prints one Celsius reading per line, such as
// a microcontroller streaming "T=23.4" or a bare "23.4".
type Serial struct {
	port port
}

func NewSerial(name string, baud int) (*Serial, error) {
	errFactory := errors.New()

	if baud <= 0 {
		baud = DefaultBaud
	}

	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		p.Close()
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	return &Serial{port: p}, nil
}

// Read discards buffered input and returns the next complete line's reading.
func (s *Serial) Read(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	if err := s.port.ResetInputBuffer(); err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, serialLineDeadline)
	defer cancel()

	// The first line after a reset may be partial.
	if _, err := s.readLine(ctx); err != nil {
		return 0, err
	}
	line, err := s.readLine(ctx)
	if err != nil {
		return 0, err
	}

	return parseReading(line)
}

func (s *Serial) readLine(ctx context.Context) (string, error) {
	errFactory := errors.New()

	line := make([]byte, 0, 64)
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return "", errFactory.Wrap(ErrTimeout, err)
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return "", errFactory.Wrap(ErrReadFailed, err)
		}
		if n == 0 {
			continue
		}

		switch buf[0] {
		case '\n':
			return string(line), nil
		case '\r':
		default:
			if len(line) >= maxLineLength {
				return "", errFactory.WithData(ErrParseFailed, string(line))
			}
			line = append(line, buf[0])
		}
	}
}

func (s *Serial) Close() error {
	return s.port.Close()
}

func parseReading(line string) (float64, error) {
	errFactory := errors.New()

	match := readingPattern.FindString(line)
	if match == "" {
		return 0, errFactory.WithData(ErrParseFailed, line)
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrParseFailed, err)
	}

	return v, nil
}
