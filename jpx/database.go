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
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

const quoteSource = "finance.yahoo.com"

// SaveToDatabase upserts every quote fetched during a run into the eod
// table, keyed on (ticker, event_date).
func SaveToDatabase(quotes []*Eod, dsn string) error {
	log.Info().Msg("saving to database")
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Error().Err(err).Msg("could not connect to database")
		return err
	}
	defer conn.Close(ctx)

	for _, quote := range quotes {
		_, err := conn.Exec(ctx,
			`INSERT INTO eod (
			"ticker",
			"event_date",
			"open",
			"high",
			"low",
			"close",
			"volume",
			"source"
		) VALUES (
			$1,
			$2,
			$3,
			$4,
			$5,
			$6,
			$7,
			$8
		) ON CONFLICT ON CONSTRAINT eod_pkey
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			source = EXCLUDED.source;`,
			quote.Ticker, quote.Date,
			quote.Open, quote.High, quote.Low, quote.Close, quote.Volume,
			quoteSource)
		if err != nil {
			log.Error().Err(err).Str("Ticker", quote.Ticker).Str("EventDate", quote.Date).Msg("error saving EOD quote to database")
		}
	}

	return nil
}
