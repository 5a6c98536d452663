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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestFindColumn(t *testing.T) {
	tests := []struct {
		name       string
		headers    []string
		candidates []string
		want       int
	}{
		{"exact match", []string{"ticker", "name"}, codeHeaders, 0},
		{"case insensitive", []string{"Name", "CODE"}, codeHeaders, 1},
		{"whitespace trimmed", []string{" Local Code ", "x"}, codeHeaders, 0},
		{"japanese header", []string{"銘柄名", "コード"}, codeHeaders, 1},
		{"candidate priority beats position", []string{"code", "ticker"}, codeHeaders, 1},
		{"no match", []string{"foo", "bar"}, codeHeaders, -1},
		{"segment variants", []string{"code", "市場・商品区分"}, segmentHeaders, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findColumn(tt.headers, tt.candidates); got != tt.want {
				t.Errorf("findColumn(%v) = %d, want %d", tt.headers, got, tt.want)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"7203", "7203"},
		{" 7203 ", "7203"},
		{"7203.0", "7203"},
		{"130A", "130A"},
		{"130A.0", "130A.0"}, // remainder not numeric, left alone
		{"86", "0086"},
		{"86.0", "0086"},
		{"", ""},
		{"nan", ""},
		{"NaN", ""},
		{"none", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTickersFromCSV_SegmentExclusion(t *testing.T) {
	path := writeRoster(t, "code,market segment\n7203,Prime\n9999,PRO Market\n")

	got, ok := TickersFromCSV(path)
	if !ok {
		t.Fatal("TickersFromCSV returned ok=false")
	}
	if want := []string{"7203"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestTickersFromCSV_FirstColumnFallback(t *testing.T) {
	path := writeRoster(t, "col_a,col_b\n7203,foo\n6758,bar\n")

	got, ok := TickersFromCSV(path)
	if !ok {
		t.Fatal("TickersFromCSV returned ok=false")
	}
	if want := []string{"7203", "6758"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestTickersFromCSV_DedupPreservesOrder(t *testing.T) {
	path := writeRoster(t, "ticker\n9984\n7203\n9984\n7203.0\nnan\n\n")

	got, ok := TickersFromCSV(path)
	if !ok {
		t.Fatal("TickersFromCSV returned ok=false")
	}
	if want := []string{"9984", "7203"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestTickersFromCSV_Missing(t *testing.T) {
	if _, ok := TickersFromCSV(filepath.Join(t.TempDir(), "absent.csv")); ok {
		t.Error("TickersFromCSV returned ok=true for a missing file")
	}
}

func TestTickersFromCSV_HeaderOnly(t *testing.T) {
	path := writeRoster(t, "ticker\n")
	if _, ok := TickersFromCSV(path); ok {
		t.Error("TickersFromCSV returned ok=true for a roster with no rows")
	}
}

func TestIsExcludedSegment(t *testing.T) {
	tests := []struct {
		segment string
		want    bool
	}{
		{"PRO Market", true},
		{"TOKYO PRO MARKET", true},
		{"Prime", false},
		{"Standard", false},
		{"Growth", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isExcludedSegment(tt.segment); got != tt.want {
			t.Errorf("isExcludedSegment(%q) = %v, want %v", tt.segment, got, tt.want)
		}
	}
}

func TestAllTickerCodes(t *testing.T) {
	codes, ok := AllTickerCodes()
	if !ok {
		t.Fatal("AllTickerCodes returned ok=false")
	}
	if len(codes) != 9000 {
		t.Errorf("len = %d, want 9000", len(codes))
	}
	if codes[0] != "1000" {
		t.Errorf("first = %s, want 1000", codes[0])
	}
	if codes[len(codes)-1] != "9999" {
		t.Errorf("last = %s, want 9999", codes[len(codes)-1])
	}
}

func TestParseRosterWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_j.xlsx")
	wb := excelize.NewFile()
	rows := [][]interface{}{
		{"コード", "銘柄名", "市場・商品区分"},
		{"9984", "ソフトバンクグループ", "プライム（内国株式）"},
		{"7203.0", "トヨタ自動車", "プライム（内国株式）"},
		{"1234", "サンプル", "TOKYO PRO Market"},
		{"130A", "ベースフード", "グロース（内国株式）"},
		{"7203", "トヨタ自動車", "プライム（内国株式）"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := wb.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	entries, err := parseRosterWorkbook(path)
	if err != nil {
		t.Fatalf("parseRosterWorkbook: %v", err)
	}

	// PRO Market row dropped, duplicate code dropped, codes sorted
	want := []string{"130A", "7203", "9984"}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, code := range want {
		if entries[i].Code != code {
			t.Errorf("entries[%d].Code = %s, want %s", i, entries[i].Code, code)
		}
	}
	if entries[2].Name != "ソフトバンクグループ" {
		t.Errorf("entries[2].Name = %s", entries[2].Name)
	}
}

func TestSaveRosterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.csv")
	entries := []RosterEntry{
		{Code: "6758", Name: "ソニーグループ"},
		{Code: "7203", Name: "トヨタ自動車"},
	}
	if err := saveRoster(entries, path); err != nil {
		t.Fatalf("saveRoster: %v", err)
	}

	got, ok := TickersFromCSV(path)
	if !ok {
		t.Fatal("TickersFromCSV could not read a saved roster")
	}
	if want := []string{"6758", "7203"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestResolveTickers_PrefersLocalRoster(t *testing.T) {
	path := writeRoster(t, "ticker\n7203\n6758\n")

	got := ResolveTickers(path, false)
	if want := []string{"7203", "6758"}; !reflect.DeepEqual(got, want) {
		t.Errorf("tickers = %v, want %v", got, want)
	}
}

func TestResolveTickers_FallsBackToAllCodes(t *testing.T) {
	got := ResolveTickers(filepath.Join(t.TempDir(), "absent.csv"), false)
	if len(got) != 9000 {
		t.Errorf("len = %d, want the 9000-code fallback", len(got))
	}
}
