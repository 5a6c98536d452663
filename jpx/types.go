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

import "time"

// DateFormat is the calendar-date layout used everywhere: in per-ticker
// CSV files, in CLI arguments and in provider requests.
const DateFormat = "2006-01-02"

// Bar is a single trading day for one ticker. Prices are adjusted for
// splits and dividends. Date carries no time component.
type Bar struct {
	Date   string  `json:"date" csv:"date"`
	Open   float64 `json:"open" csv:"open"`
	High   float64 `json:"high" csv:"high"`
	Low    float64 `json:"low" csv:"low"`
	Close  float64 `json:"close" csv:"close"`
	Volume int64   `json:"volume" csv:"volume"`
}

// Series is one ticker's daily history, ascending by date with unique dates.
type Series []Bar

// LastDate returns the most recent date in the series. ok is false for an
// empty series or an unparseable date value.
func (s Series) LastDate() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	last := s[0].Date
	for _, b := range s[1:] {
		if b.Date > last {
			last = b.Date
		}
	}
	t, err := time.Parse(DateFormat, last)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Eod is a flattened quote row for the cross-ticker sinks (parquet file,
// database table).
type Eod struct {
	Date   string  `json:"date" parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Ticker string  `json:"ticker" parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Open   float64 `json:"open" parquet:"name=open, type=DOUBLE"`
	High   float64 `json:"high" parquet:"name=high, type=DOUBLE"`
	Low    float64 `json:"low" parquet:"name=low, type=DOUBLE"`
	Close  float64 `json:"close" parquet:"name=close, type=DOUBLE"`
	Volume int64   `json:"volume" parquet:"name=volume, type=INT64, convertedtype=INT_64"`
}

// Outcome classifies how a single ticker finished.
type Outcome int

const (
	// OutcomeSuccess - new data fetched and persisted
	OutcomeSuccess Outcome = iota
	// OutcomeSkip - already up to date, no fetch issued
	OutcomeSkip
	// OutcomeError - no data and nothing persisted before
	OutcomeError
	// OutcomeRetained - no new data but prior series kept untouched
	// (possible delisting)
	OutcomeRetained
)

// Report aggregates per-ticker outcomes for a whole run.
type Report struct {
	Success  int
	Skip     int
	Error    int
	Retained int
}

func (r *Report) Add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		r.Success++
	case OutcomeSkip:
		r.Skip++
	case OutcomeError:
		r.Error++
	case OutcomeRetained:
		r.Retained++
	}
}
