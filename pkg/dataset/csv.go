package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/natefinch/atomic"
)

var (
	// ErrMalformedRecord is returned for a record with a non-integer day or an empty state.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrMissingColumn is returned when the header lacks the day or state column.
	ErrMissingColumn = errors.New("missing column")
)

// Columns names the header fields holding the day and the state.
type Columns struct {
	Day   string `json:"day"`
	State string `json:"state"`
}

// DefaultColumns returns the header used by generated logs.
func DefaultColumns() Columns {
	return Columns{Day: "dia", State: "estado"}
}

// englishColumns are accepted in place of the defaults.
var englishColumns = Columns{Day: "day", State: "state"}

func (c Columns) orDefault() Columns {
	if c.Day == "" && c.State == "" {
		return DefaultColumns()
	}
	return c
}

// ReadCSV parses a log from r. The first record is the header; columns are
// located by name, so extra columns and any column order are fine. When cols
// is the zero value or DefaultColumns, "day" and "state" are accepted too.
// An empty input yields no observations and no error.
func ReadCSV(r io.Reader, cols Columns) ([]markov.Observation, error) {
	cols = cols.orDefault()

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []markov.Observation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	dayIdx, stateIdx := locate(header, cols)
	if (dayIdx < 0 || stateIdx < 0) && cols == DefaultColumns() {
		dayIdx, stateIdx = locate(header, englishColumns)
	}
	if dayIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, cols.Day)
	}
	if stateIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, cols.State)
	}

	obs := make([]markov.Observation, 0, 64)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if dayIdx >= len(record) || stateIdx >= len(record) {
			return nil, fmt.Errorf("line %d: %w: expected at least %d fields, got %d",
				line, ErrMalformedRecord, max(dayIdx, stateIdx)+1, len(record))
		}
		day, err := strconv.Atoi(strings.TrimSpace(record[dayIdx]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: day %q is not an integer", line, ErrMalformedRecord, record[dayIdx])
		}
		state := strings.TrimSpace(record[stateIdx])
		if state == "" {
			return nil, fmt.Errorf("line %d: %w: empty state", line, ErrMalformedRecord)
		}
		obs = append(obs, markov.Observation{Day: day, State: state})
	}
	return obs, nil
}

func locate(header []string, cols Columns) (dayIdx, stateIdx int) {
	dayIdx, stateIdx = -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case strings.EqualFold(name, cols.Day):
			dayIdx = i
		case strings.EqualFold(name, cols.State):
			stateIdx = i
		}
	}
	return dayIdx, stateIdx
}

// WriteCSV writes obs to w as a log with a header row, in the given order.
func WriteCSV(w io.Writer, obs []markov.Observation, cols Columns) error {
	cols = cols.orDefault()

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{cols.Day, cols.State}); err != nil {
		return err
	}
	for _, o := range obs {
		if err := writer.Write([]string{strconv.Itoa(o.Day), o.State}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes obs as CSV to path. The file is replaced atomically, so a
// reader never observes a partially written log.
func WriteFile(path string, obs []markov.Observation, cols Columns) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, obs, cols); err != nil {
		return fmt.Errorf("failed to encode observations: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
