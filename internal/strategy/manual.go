package strategy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrMalformedLine is returned by ParseLine for input it cannot read.
var ErrMalformedLine = errors.New("malformed order line")

// ParseLine reads "<SIDE> <ticker> <qty> <price>". The side is upper-cased
// but not validated here; an unknown side is left for the exchange to reject.
func ParseLine(line string) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Action{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedLine, len(fields))
	}

	qty, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: quantity %q", ErrMalformedLine, fields[2])
	}
	price, err := decimal.NewFromString(fields[3])
	if err != nil {
		return Action{}, fmt.Errorf("%w: price %q", ErrMalformedLine, fields[3])
	}

	return Action{
		Side:   domain.Side(strings.ToUpper(fields[0])),
		Symbol: fields[1],
		Price:  price,
		Qty:    qty,
	}, nil
}

// ManualStrategy reads orders line by line. Blank lines and lines starting
// with '#' are ignored, malformed lines are reported and skipped, and
// "quit" or end of input ends the stream.
type ManualStrategy struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	skipped int
}

// NewManualStrategy reads from r. Reports go to logger.
func NewManualStrategy(r io.Reader, logger *slog.Logger) *ManualStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManualStrategy{scanner: bufio.NewScanner(r), logger: logger}
}

// Next implements Strategy.
func (s *ManualStrategy) Next() (Action, bool) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return Action{}, false
		}

		action, err := ParseLine(line)
		if err != nil {
			s.skipped++
			s.logger.Warn("Skipping input line", slog.String("line", line), slog.Any("error", err))
			continue
		}
		return action, true
	}
	if err := s.scanner.Err(); err != nil {
		s.logger.Error("Input read failed", slog.Any("error", err))
	}
	return Action{}, false
}

// Skipped returns the number of malformed lines seen so far.
func (s *ManualStrategy) Skipped() int {
	return s.skipped
}
