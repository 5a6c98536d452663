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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HistoryProvider retrieves one ticker's daily bars for a date range.
// A (nil, nil) return means no data is available for the ticker, which
// the caller may interpret as a delisting when prior data exists.
type HistoryProvider interface {
	History(ticker string, start, end time.Time) (Series, error)
}

// marketSuffix is appended to bare TSE codes to form the provider symbol,
// e.g. 7203 -> 7203.T
const marketSuffix = ".T"

// jst - the exchange's trading calendar; fixed offset so no tzdata is needed
var jst = time.FixedZone("JST", 9*60*60)

// YahooProvider implements HistoryProvider against the Yahoo Finance v8
// chart API, with bounded retries for transient network failures.
type YahooProvider struct {
	Client      *resty.Client
	BaseURL     string
	MaxAttempts int
	BackoffBase time.Duration
	Log         zerolog.Logger
}

func NewYahooProvider() *YahooProvider {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	return &YahooProvider{
		Client:      client,
		BaseURL:     "https://query1.finance.yahoo.com",
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		Log:         log.Logger,
	}
}

// attemptClass is the pure classification of a failed fetch attempt.
type attemptClass int

const (
	classTransient attemptClass = iota
	classDelisted
	classTerminal
)

var delistedMarkers = []string{
	"delisted",
	"no price data",
	"no data found",
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"unexpected eof",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// classifyFetchError maps an error message to retry-or-give-up. Delisting
// markers are checked first so a provider message like "No data found,
// symbol may be delisted" never triggers a retry.
func classifyFetchError(msg string) attemptClass {
	m := strings.ToLower(msg)
	for _, marker := range delistedMarkers {
		if strings.Contains(m, marker) {
			return classDelisted
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(m, marker) {
			return classTransient
		}
	}
	return classTerminal
}

// History fetches adjusted daily bars for ticker between start and end.
// Transient failures are retried up to MaxAttempts with a linearly growing
// backoff; everything else returns absent on the first attempt.
func (p *YahooProvider) History(ticker string, start, end time.Time) (Series, error) {
	symbol := ticker + marketSuffix

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		bars, err := p.fetchChart(symbol, start, end)
		if err == nil {
			if len(bars) == 0 {
				p.Log.Warn().Str("Ticker", ticker).Msg("no data returned, possible delisting")
				return nil, nil
			}
			return bars, nil
		}

		switch classifyFetchError(err.Error()) {
		case classDelisted:
			p.Log.Warn().Err(err).Str("Ticker", ticker).Msg("symbol reported delisted")
			return nil, nil
		case classTransient:
			if attempt == p.MaxAttempts {
				p.Log.Error().Err(err).Str("Ticker", ticker).Int("Attempts", attempt).Msg("retries exhausted")
				return nil, nil
			}
			wait := p.BackoffBase * time.Duration(attempt)
			p.Log.Warn().Err(err).Str("Ticker", ticker).Int("Attempt", attempt).Dur("Backoff", wait).Msg("transient fetch error, retrying")
			time.Sleep(wait)
		default:
			p.Log.Error().Err(err).Str("Ticker", ticker).Msg("error fetching history")
			return nil, nil
		}
	}
	return nil, nil
}

// chartResponse mirrors the Yahoo v8 chart payload. Nil elements in the
// quote arrays mark non-trading days.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) fetchChart(symbol string, start, end time.Time) (Series, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s", p.BaseURL, symbol)
	resp, err := p.Client.R().
		SetQueryParams(map[string]string{
			"period1":  fmt.Sprintf("%d", start.Unix()),
			"period2":  fmt.Sprintf("%d", end.Unix()),
			"interval": "1d",
			"events":   "div,splits",
		}).
		Get(url)
	if err != nil {
		return nil, err
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(resp.Body(), &chart)
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("chart request failed: status %d", resp.StatusCode())
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("could not decode chart response: %w", decodeErr)
	}

	if len(chart.Chart.Result) == 0 {
		return Series{}, nil
	}
	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return Series{}, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart response for %s missing quote fields", symbol)
	}
	if len(result.Indicators.Adjclose) == 0 {
		return nil, fmt.Errorf("chart response for %s missing adjclose field", symbol)
	}

	quote := result.Indicators.Quote[0]
	adjclose := result.Indicators.Adjclose[0].Adjclose
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n ||
		len(quote.Close) != n || len(quote.Volume) != n || len(adjclose) != n {
		return nil, fmt.Errorf("chart response for %s has mismatched field lengths", symbol)
	}

	bars := make(Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i]
		if o == nil || h == nil || l == nil || c == nil {
			continue // holiday / halted bar
		}

		// Same normalization yfinance applies with auto_adjust: scale all
		// four prices by adjclose/close so splits and dividends are baked in.
		ratio := 1.0
		if adjclose[i] != nil && *c != 0 {
			ratio = *adjclose[i] / *c
		}

		var volume int64
		if quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bars = append(bars, Bar{
			Date:   time.Unix(ts, 0).In(jst).Format(DateFormat),
			Open:   *o * ratio,
			High:   *h * ratio,
			Low:    *l * ratio,
			Close:  *c * ratio,
			Volume: volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}
