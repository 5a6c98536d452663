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
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/ratelimit"
)

// DownloadOptions configures a batch run.
type DownloadOptions struct {
	Tickers   []string
	StartDate time.Time
	EndDate   time.Time // zero means latest
	Update    bool      // incremental mode
	Delay     float64   // seconds between requests; <= 0 disables pacing
	Store     *Store
	Provider  HistoryProvider
	Log       zerolog.Logger
}

func newLimiter(delaySeconds float64) ratelimit.Limiter {
	if delaySeconds <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(1, ratelimit.Per(time.Duration(delaySeconds*float64(time.Second))))
}

// DownloadAll processes every ticker sequentially: determine the fetch
// range, fetch, merge with any prior series and persist. One limiter take
// separates consecutive tickers no matter which branch a ticker follows,
// and no single ticker's failure aborts the batch. Returns the aggregate
// report and every newly fetched bar for the optional cross-ticker sinks.
func DownloadAll(opts DownloadOptions) (Report, []*Eod) {
	limit := newLimiter(opts.Delay)
	today := midnight(time.Now())

	var report Report
	quotes := []*Eod{}

	opts.Log.Info().Int("NumTickers", len(opts.Tickers)).Bool("Update", opts.Update).Msg("starting download")
	bar := progressbar.Default(int64(len(opts.Tickers)))
	for _, ticker := range opts.Tickers {
		bar.Add(1)
		limit.Take()

		outcome, fetched := downloadOne(opts, ticker, today)
		report.Add(outcome)
		for _, b := range fetched {
			quotes = append(quotes, &Eod{
				Date:   b.Date,
				Ticker: ticker,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			})
		}
	}

	opts.Log.Info().
		Int("Success", report.Success).
		Int("Skip", report.Skip).
		Int("Error", report.Error).
		Int("Retained", report.Retained).
		Msg("download finished")
	return report, quotes
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// downloadOne runs the per-ticker state machine and returns the outcome
// along with the bars fetched this run (nil unless new data was persisted).
func downloadOne(opts DownloadOptions, ticker string, today time.Time) (Outcome, Series) {
	var prior Series
	havePrior := false
	start := opts.StartDate

	if opts.Update {
		if existing, ok := opts.Store.Load(ticker); ok && len(existing) > 0 {
			prior = existing
			havePrior = true
			if last, ok := existing.LastDate(); ok {
				next := last.AddDate(0, 0, 1)
				if next.After(today) {
					return OutcomeSkip, nil
				}
				start = next
			}
		}
	}

	end := opts.EndDate
	if end.IsZero() {
		end = time.Now()
	}

	fetched, err := opts.Provider.History(ticker, start, end)
	if err != nil {
		opts.Log.Error().Err(err).Str("Ticker", ticker).Msg("fetch failed")
	}
	if err != nil || len(fetched) == 0 {
		if havePrior {
			opts.Log.Warn().Str("Ticker", ticker).Msg("no new data, keeping prior series (possible delisting)")
			return OutcomeRetained, nil
		}
		return OutcomeError, nil
	}

	series := fetched
	if havePrior {
		series = Merge(prior, fetched)
	}

	if err := opts.Store.Save(series, ticker); err != nil {
		return OutcomeError, nil
	}
	return OutcomeSuccess, fetched
}

// SaveToParquet writes every quote fetched during a run into a single
// parquet file.
func SaveToParquet(records []*Eod, fn string) error {
	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("cannot create local file")
		return err
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(Eod), 4)
	if err != nil {
		log.Error().Err(err).Msg("parquet write failed")
		return err
	}

	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.PageSize = 8 * 1024              // 8k
	pw.CompressionType = parquet.CompressionCodec_GZIP

	for _, r := range records {
		if err = pw.Write(r); err != nil {
			log.Error().Err(err).Str("EventDate", r.Date).Str("Ticker", r.Ticker).Msg("parquet write failed for record")
		}
	}

	if err = pw.WriteStop(); err != nil {
		log.Error().Err(err).Msg("parquet write failed")
		return err
	}

	log.Info().Int("NumRecords", len(records)).Msg("parquet write finished")
	return nil
}
