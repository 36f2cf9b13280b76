package pitch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/dygy/melody-grep/internal/errors"
	"github.com/dygy/melody-grep/internal/notes"
)

// LoadCurve reads a pitch curve from a .json or .csv file.
func LoadCurve(path string) ([]notes.PitchFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open pitch curve: %w", err)
	}
	defer f.Close()

	var frames []notes.PitchFrame
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		frames, err = ReadCurveCSV(f)
	case ".json":
		frames, err = ReadCurveJSON(f)
	default:
		return nil, fmt.Errorf("%w: pitch curve must be .json or .csv", apperrors.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return frames, nil
}

// columnar is the layout crepe's Python API returns: parallel arrays.
type columnar struct {
	Time       []float64 `json:"time"`
	Frequency  []float64 `json:"frequency"`
	Confidence []float64 `json:"confidence"`
}

// ReadCurveJSON accepts either an array of frame objects or an object of
// parallel time/frequency/confidence arrays.
func ReadCurveJSON(r io.Reader) ([]notes.PitchFrame, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("%w: empty pitch curve", apperrors.ErrCorruptedFile)
	}

	var frames []notes.PitchFrame
	dec := json.NewDecoder(br)
	if first == '{' {
		var cols columnar
		if err := dec.Decode(&cols); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
		}
		n := len(cols.Time)
		if len(cols.Frequency) != n || len(cols.Confidence) != n {
			return nil, fmt.Errorf("%w: time/frequency/confidence lengths differ (%d/%d/%d)",
				apperrors.ErrCorruptedFile, n, len(cols.Frequency), len(cols.Confidence))
		}
		frames = make([]notes.PitchFrame, n)
		for i := range n {
			frames[i] = notes.PitchFrame{Time: cols.Time[i], Frequency: cols.Frequency[i], Confidence: cols.Confidence[i]}
		}
	} else {
		if err := dec.Decode(&frames); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
		}
	}
	return tidy(frames)
}

// ReadCurveCSV reads time,frequency,confidence rows. A non-numeric first
// row is treated as a header.
func ReadCurveCSV(r io.Reader) ([]notes.PitchFrame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var frames []notes.PitchFrame
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want 3", apperrors.ErrCorruptedFile, line, len(rec))
		}

		var vals [3]float64
		var parseErr error
		for i := range vals {
			if vals[i], parseErr = strconv.ParseFloat(strings.TrimSpace(rec[i]), 64); parseErr != nil {
				break
			}
		}
		if parseErr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrCorruptedFile, line, parseErr)
		}
		frames = append(frames, notes.PitchFrame{Time: vals[0], Frequency: vals[1], Confidence: vals[2]})
	}
	return tidy(frames)
}

// tidy rejects non-finite times, treats non-finite frequencies as unvoiced,
// clamps confidence to [0, 1] and orders frames by time.
func tidy(frames []notes.PitchFrame) ([]notes.PitchFrame, error) {
	if frames == nil {
		frames = []notes.PitchFrame{}
	}
	for i, f := range frames {
		if math.IsNaN(f.Time) || math.IsInf(f.Time, 0) {
			return nil, fmt.Errorf("%w: frame %d has invalid time", apperrors.ErrCorruptedFile, i)
		}
		if math.IsNaN(f.Frequency) || math.IsInf(f.Frequency, 0) {
			frames[i].Frequency = 0
		}
		if math.IsNaN(f.Confidence) {
			frames[i].Confidence = 0
		} else {
			frames[i].Confidence = min(max(f.Confidence, 0), 1)
		}
	}
	slices.SortStableFunc(frames, func(a, b notes.PitchFrame) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return frames, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			return b, br.UnreadByte()
		}
	}
}

// WriteCurveJSON writes frames as a JSON array.
func WriteCurveJSON(w io.Writer, frames []notes.PitchFrame) error {
	enc := json.NewEncoder(w)
	return enc.Encode(frames)
}
