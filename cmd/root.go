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
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jpquant/import-jpx/jpx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "import-jpx",
	Short: "Download daily quotes for Tokyo Stock Exchange equities",
	Long: `Download adjusted daily OHLCV history for every listed TSE equity
and save it as one CSV file per ticker, with optional parquet and
database sinks. Running with --update extends existing files from
their latest date instead of re-downloading everything.`,
	Run: func(cmd *cobra.Command, args []string) {
		start, err := time.Parse(jpx.DateFormat, viper.GetString("start_date"))
		if err != nil {
			log.Fatal().Err(err).Str("StartDate", viper.GetString("start_date")).Msg("dates must use the YYYY-MM-DD format")
		}
		var end time.Time
		if endStr := viper.GetString("end_date"); endStr != "" {
			if end, err = time.Parse(jpx.DateFormat, endStr); err != nil {
				log.Fatal().Err(err).Str("EndDate", endStr).Msg("dates must use the YYYY-MM-DD format")
			}
		}

		update := viper.GetBool("update")
		dataDir := viper.GetString("data_dir")

		log.Info().
			Str("StartDate", start.Format(jpx.DateFormat)).
			Str("EndDate", endOrLatest(end)).
			Bool("Update", update).
			Str("DataDir", dataDir).
			Msg("starting import-jpx")

		tickers := jpx.ResolveTickers(viper.GetString("tickers_file"), !viper.GetBool("no_remote_roster"))

		limit := viper.GetInt("limit")
		if limit > 0 && limit < len(tickers) {
			tickers = tickers[:limit]
		}

		_, quotes := jpx.DownloadAll(jpx.DownloadOptions{
			Tickers:   tickers,
			StartDate: start,
			EndDate:   end,
			Update:    update,
			Delay:     viper.GetFloat64("delay"),
			Store:     jpx.NewStore(dataDir),
			Provider:  jpx.NewYahooProvider(),
			Log:       log.Logger,
		})

		if viper.GetString("parquet_file") != "" {
			jpx.SaveToParquet(quotes, viper.GetString("parquet_file"))
		}

		if viper.GetString("database.url") != "" {
			jpx.SaveToDatabase(quotes, viper.GetString("database.url"))
		}
	},
}

func endOrLatest(end time.Time) string {
	if end.IsZero() {
		return "latest"
	}
	return end.Format(jpx.DateFormat)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLog)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is import-jpx.toml)")
	rootCmd.PersistentFlags().Bool("log.json", false, "print logs as json to stderr")
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log.json"))

	// Local flags
	rootCmd.Flags().String("start-date", "2016-01-01", "first date to download (YYYY-MM-DD)")
	viper.BindPFlag("start_date", rootCmd.Flags().Lookup("start-date"))

	rootCmd.Flags().String("end-date", "", "last date to download (YYYY-MM-DD, empty for latest)")
	viper.BindPFlag("end_date", rootCmd.Flags().Lookup("end-date"))

	rootCmd.Flags().BoolP("update", "u", false, "incremental mode: fetch only dates after each ticker's latest saved date")
	viper.BindPFlag("update", rootCmd.Flags().Lookup("update"))

	rootCmd.Flags().String("data-dir", "data", "directory for per-ticker CSV files")
	viper.BindPFlag("data_dir", rootCmd.Flags().Lookup("data-dir"))

	rootCmd.Flags().Float64("delay", 1.0, "seconds between provider requests")
	viper.BindPFlag("delay", rootCmd.Flags().Lookup("delay"))

	rootCmd.Flags().String("tickers-file", "tickers.csv", "local roster file listing ticker codes")
	viper.BindPFlag("tickers_file", rootCmd.Flags().Lookup("tickers-file"))

	rootCmd.Flags().Bool("no-remote-roster", false, "never fetch the roster from the exchange website")
	viper.BindPFlag("no_remote_roster", rootCmd.Flags().Lookup("no-remote-roster"))

	rootCmd.Flags().Uint32P("limit", "l", 0, "limit tickers to N")
	viper.BindPFlag("limit", rootCmd.Flags().Lookup("limit"))

	rootCmd.Flags().String("parquet-file", "", "save all fetched quotes to parquet")
	viper.BindPFlag("parquet_file", rootCmd.Flags().Lookup("parquet-file"))

	rootCmd.Flags().StringP("database-url", "d", "", "DSN for database connection")
	viper.BindPFlag("database.url", rootCmd.Flags().Lookup("database-url"))
}

func initLog() {
	if !viper.GetBool("log.json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".import-jpx" (without extension).
		viper.AddConfigPath("/etc/import-jpx/") // path to look for the config file in
		viper.AddConfigPath(fmt.Sprintf("%s/.import-jpx", home))
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		viper.SetConfigName("import-jpx")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("ConfigFile", viper.ConfigFileUsed()).Msg("Loaded config file")
	}
}
