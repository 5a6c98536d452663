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
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	jpxBaseURL     = "https://www.jpx.co.jp"
	jpxListingPage = jpxBaseURL + "/markets/statistics-equities/misc/01.html"

	// known location of the listed-companies workbook, used when the page
	// scan finds no link
	jpxDefaultResource = "/markets/statistics-equities/misc/tvdivq0000001vg2-att/data_j.xlsx"

	// TOKYO PRO Market instruments are not retail-tradable and are dropped
	excludedSegment = "pro market"
)

var jpxResourcePattern = regexp.MustCompile(`(?i)href="([^"]*data_j[^"]*\.xlsx?)"`)

// Header candidates for heuristic column detection, in priority order.
// Matching is case-insensitive against trimmed header cells.
var (
	codeHeaders    = []string{"ticker", "code", "symbol", "local code", "銘柄コード", "コード"}
	nameHeaders    = []string{"name", "company", "company name", "銘柄名", "会社名"}
	segmentHeaders = []string{"market segment", "market", "segment", "市場・商品区分", "市場区分"}
)

// findColumn returns the index of the first header matching any candidate,
// trying candidates in priority order. -1 when nothing matches.
func findColumn(headers, candidates []string) int {
	for _, cand := range candidates {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), cand) {
				return i
			}
		}
	}
	return -1
}

func isExcludedSegment(segment string) bool {
	return strings.Contains(strings.ToLower(segment), excludedSegment)
}

// NormalizeCode canonicalizes a roster cell into a ticker code. Empty and
// placeholder cells map to "". A trailing ".0" (spreadsheet auto-typing of
// numeric codes) is stripped only when the remainder is purely numeric, so
// newer alphanumeric codes like 130A pass through unchanged. Purely numeric
// codes shorter than four digits are zero-padded.
func NormalizeCode(raw string) string {
	code := strings.TrimSpace(raw)
	switch strings.ToLower(code) {
	case "", "nan", "none":
		return ""
	}
	if trimmed, ok := strings.CutSuffix(code, ".0"); ok && isDigits(trimmed) {
		code = trimmed
	}
	if isDigits(code) && len(code) < 4 {
		code = strings.Repeat("0", 4-len(code)) + code
	}
	return code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rosterProvider produces a candidate ticker list; ok is false when the
// source is unavailable so the next provider in the chain is tried.
type rosterProvider func() ([]string, bool)

// ResolveTickers returns the tickers to process. Sources are tried in
// order: the local roster file, the exchange's published roster (persisted
// locally for the next run), and finally every four-digit code. The result
// is never empty.
func ResolveTickers(rosterPath string, fetchRemote bool) []string {
	providers := []rosterProvider{
		func() ([]string, bool) { return TickersFromCSV(rosterPath) },
		func() ([]string, bool) {
			if !fetchRemote {
				return nil, false
			}
			return TickersFromJPX(rosterPath)
		},
		AllTickerCodes,
	}

	for _, provider := range providers {
		if tickers, ok := provider(); ok && len(tickers) > 0 {
			return tickers
		}
	}
	return nil // unreachable, AllTickerCodes always succeeds
}

// TickersFromCSV reads ticker codes from a local roster file. The code
// column is located by header name, defaulting to the first column; rows in
// the excluded market segment are dropped when a segment column is present.
// First-seen order is preserved.
func TickersFromCSV(path string) ([]string, bool) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not read roster file")
		return nil, false
	}
	if len(records) < 2 {
		return nil, false
	}

	headers := records[0]
	codeCol := findColumn(headers, codeHeaders)
	if codeCol < 0 {
		codeCol = 0
	}
	segmentCol := findColumn(headers, segmentHeaders)

	seen := make(map[string]bool)
	tickers := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if codeCol >= len(rec) {
			continue
		}
		code := NormalizeCode(rec[codeCol])
		if code == "" || seen[code] {
			continue
		}
		if segmentCol >= 0 && segmentCol < len(rec) && isExcludedSegment(rec[segmentCol]) {
			continue
		}
		seen[code] = true
		tickers = append(tickers, code)
	}

	if len(tickers) == 0 {
		return nil, false
	}
	log.Info().Int("NumTickers", len(tickers)).Str("Path", path).Msg("loaded tickers from roster file")
	return tickers, true
}

// TickersFromJPX downloads the exchange's listed-companies workbook,
// extracts the roster and persists it at rosterPath so the local file is
// used on the next run. Codes are returned sorted.
func TickersFromJPX(rosterPath string) ([]string, bool) {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	resp, err := client.R().Get(jpxListingPage)
	if err != nil {
		log.Error().Err(err).Str("Url", jpxListingPage).Msg("could not fetch listing page")
		return nil, false
	}
	if resp.StatusCode() >= 400 {
		log.Error().Int("StatusCode", resp.StatusCode()).Str("Url", jpxListingPage).Msg("could not fetch listing page")
		return nil, false
	}

	resource := jpxDefaultResource
	if m := jpxResourcePattern.FindStringSubmatch(string(resp.Body())); m != nil {
		resource = m[1]
	}
	resourceURL := resource
	if strings.HasPrefix(resource, "/") {
		resourceURL = jpxBaseURL + resource
	}

	tmp, err := os.CreateTemp("", "jpx-roster-*.xlsx")
	if err != nil {
		log.Error().Err(err).Msg("could not create temp file for roster download")
		return nil, false
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	resp, err = client.R().SetOutput(tmpPath).Get(resourceURL)
	if err != nil {
		log.Error().Err(err).Str("Url", resourceURL).Msg("could not download roster workbook")
		return nil, false
	}
	if resp.StatusCode() >= 400 {
		log.Error().Int("StatusCode", resp.StatusCode()).Str("Url", resourceURL).Msg("could not download roster workbook")
		return nil, false
	}

	entries, err := parseRosterWorkbook(tmpPath)
	if err != nil {
		log.Error().Err(err).Str("Url", resourceURL).Msg("could not parse roster workbook")
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}

	if err := saveRoster(entries, rosterPath); err != nil {
		log.Error().Err(err).Str("Path", rosterPath).Msg("could not persist roster file")
	} else {
		log.Info().Int("NumTickers", len(entries)).Str("Path", rosterPath).Msg("persisted roster file")
	}

	tickers := make([]string, 0, len(entries))
	for _, e := range entries {
		tickers = append(tickers, e.Code)
	}
	return tickers, true
}

// RosterEntry is one listed instrument from the exchange workbook.
type RosterEntry struct {
	Code string
	Name string
}

// parseRosterWorkbook extracts deduplicated, code-sorted roster entries
// from the first sheet of the exchange workbook.
func parseRosterWorkbook(path string) ([]RosterEntry, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("workbook has no data rows")
	}

	headers := rows[0]
	codeCol := findColumn(headers, codeHeaders)
	if codeCol < 0 {
		codeCol = 0
	}
	nameCol := findColumn(headers, nameHeaders)
	segmentCol := findColumn(headers, segmentHeaders)

	seen := make(map[string]bool)
	entries := make([]RosterEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if codeCol >= len(row) {
			continue
		}
		code := NormalizeCode(row[codeCol])
		if code == "" || seen[code] {
			continue
		}
		if segmentCol >= 0 && segmentCol < len(row) && isExcludedSegment(row[segmentCol]) {
			continue
		}
		entry := RosterEntry{Code: code}
		if nameCol >= 0 && nameCol < len(row) {
			entry.Name = strings.TrimSpace(row[nameCol])
		}
		seen[code] = true
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
	return entries, nil
}

func saveRoster(entries []RosterEntry, path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(fh)
	if err := w.Write([]string{"ticker", "name"}); err != nil {
		fh.Close()
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Code, e.Name}); err != nil {
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

// AllTickerCodes is the last-resort roster: every four-digit code. Most are
// not listed and will simply come back empty at fetch time.
func AllTickerCodes() ([]string, bool) {
	log.Warn().Msg("no roster available, trying all codes 1000-9999")
	codes := make([]string, 0, 9000)
	for i := 1000; i <= 9999; i++ {
		codes = append(codes, fmt.Sprintf("%04d", i))
	}
	return codes, true
}
