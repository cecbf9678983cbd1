package report

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// ReplayLog replays rows from a JSONL status log to writer. A speed > 0
// paces playback by the recorded timestamps, accelerated by speed; rows of
// the same tick share a timestamp and are written back to back. A speed
// <= 0 replays without delay.
func ReplayLog(r io.Reader, writer Writer, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens path and replays its rows.
func ReplayLogFile(path string, writer Writer, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
