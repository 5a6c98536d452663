/*
Copyright 2025

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package jpx

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var seriesHeader = []string{"date", "open", "high", "low", "close", "volume"}

// Store persists one CSV file per ticker under DataDir.
type Store struct {
	DataDir string
	Log     zerolog.Logger
}

func NewStore(dataDir string) *Store {
	return &Store{
		DataDir: dataDir,
		Log:     log.Logger,
	}
}

func (s *Store) path(ticker string) string {
	return filepath.Join(s.DataDir, fmt.Sprintf("%s.csv", ticker))
}

// Load reads the persisted series for ticker. ok is false when no file
// exists or the file cannot be parsed.
func (s *Store) Load(ticker string) (Series, bool) {
	fh, err := os.Open(s.path(ticker))
	if err != nil {
		return nil, false
	}
	defer fh.Close()

	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		s.Log.Error().Err(err).Str("Ticker", ticker).Msg("could not read series file")
		return nil, false
	}
	if len(records) < 2 {
		return nil, false
	}

	series := make(Series, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 6 {
			continue
		}
		bar, err := parseBar(rec)
		if err != nil {
			s.Log.Error().Err(err).Str("Ticker", ticker).Strs("Record", rec).Msg("could not parse series row")
			return nil, false
		}
		series = append(series, bar)
	}
	return series, true
}

func parseBar(rec []string) (Bar, error) {
	var bar Bar
	if _, err := time.Parse(DateFormat, rec[0]); err != nil {
		return bar, fmt.Errorf("bad date %q: %w", rec[0], err)
	}
	bar.Date = rec[0]

	var err error
	if bar.Open, err = strconv.ParseFloat(rec[1], 64); err != nil {
		return bar, err
	}
	if bar.High, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return bar, err
	}
	if bar.Low, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return bar, err
	}
	if bar.Close, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return bar, err
	}
	if bar.Volume, err = strconv.ParseInt(rec[5], 10, 64); err != nil {
		return bar, err
	}
	return bar, nil
}

// Save writes the full series for ticker, overwriting any prior file and
// creating DataDir if needed.
func (s *Store) Save(series Series, ticker string) error {
	if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
		s.Log.Error().Err(err).Str("Ticker", ticker).Str("DataDir", s.DataDir).Msg("could not create data directory")
		return err
	}

	fh, err := os.Create(s.path(ticker))
	if err != nil {
		s.Log.Error().Err(err).Str("Ticker", ticker).Msg("could not create series file")
		return err
	}

	w := csv.NewWriter(fh)
	if err := w.Write(seriesHeader); err != nil {
		fh.Close()
		return err
	}
	for _, b := range series {
		rec := []string{
			b.Date,
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			fh.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Merge combines a previously persisted series with newly fetched bars.
// When both define the same date the incoming bar wins. The result is
// ascending by date with unique dates; merging a series with any subset
// of itself returns the original content.
func Merge(existing, incoming Series) Series {
	byDate := make(map[string]Bar, len(existing)+len(incoming))
	for _, b := range existing {
		byDate[b.Date] = b
	}
	for _, b := range incoming {
		byDate[b.Date] = b
	}

	merged := make(Series, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}
