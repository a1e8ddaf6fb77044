package commands

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/marketdata"
	"github.com/wonny/factorloop/pkg/database"
)

// importCmd loads market data CSV files into PostgreSQL
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "시세/거래일 CSV 적재",
	Long: `CSV 파일을 market 스키마에 적재합니다.

형식 (헤더 행은 자동으로 건너뜀):
  bars:     date,open,high,low,close
  calendar: date
  ticks:    instrument,last,prev_close,open,high,low,bid1,ask1[,up_limit,down_limit]

Example:
  go run ./cmd/quant import bars 600519 data/600519.csv
  go run ./cmd/quant import calendar data/calendar.csv
  go run ./cmd/quant import ticks data/ticks.csv`,
}

var (
	importBarsCmd = &cobra.Command{
		Use:   "bars [instrument] [file]",
		Short: "일봉 적재",
		Args:  cobra.ExactArgs(2),
		RunE:  runImportBars,
	}

	importCalendarCmd = &cobra.Command{
		Use:   "calendar [file]",
		Short: "거래일 적재",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCalendar,
	}

	importTicksCmd = &cobra.Command{
		Use:   "ticks [file]",
		Short: "최신 호가 적재",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportTicks,
	}
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importBarsCmd)
	importCmd.AddCommand(importCalendarCmd)
	importCmd.AddCommand(importTicksCmd)
}

// withStore opens the database, migrates it and hands the market store to fn.
func withStore(fn func(ctx context.Context, b *base, s *marketdata.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	b, err := loadBase()
	if err != nil {
		return err
	}
	db, err := database.New(b.cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return fn(ctx, b, marketdata.NewStore(db.Pool))
}

func runImportBars(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	bars, err := parseBars(f)
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, b *base, s *marketdata.Store) error {
		if err := s.UpsertBars(ctx, args[0], bars); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("%s: %d bars imported", args[0], len(bars)))
		return nil
	})
}

func runImportCalendar(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	days, err := parseCalendar(f)
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, b *base, s *marketdata.Store) error {
		if err := s.UpsertCalendar(ctx, b.strategy.Meta.Market, days); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("%s: %d trading days imported", b.strategy.Meta.Market, len(days)))
		return nil
	})
}

func runImportTicks(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ticks, err := parseTicks(f, time.Now())
	if err != nil {
		return err
	}
	return withStore(func(ctx context.Context, b *base, s *marketdata.Store) error {
		for id, t := range ticks {
			if err := s.UpsertTick(ctx, id, t); err != nil {
				return err
			}
		}
		PrintSuccess(fmt.Sprintf("%d ticks imported", len(ticks)))
		return nil
	})
}

// readRows returns all CSV records, dropping a leading header row.
func readRows(r io.Reader, minFields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]string
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < minFields {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, minFields, len(rec))
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func isHeader(rec []string) bool {
	_, dateErr := time.Parse(contracts.DateLayout, strings.TrimSpace(rec[0]))
	if dateErr == nil {
		return false
	}
	if len(rec) > 1 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64); err == nil {
			return false
		}
	}
	return true
}

func parseFloats(rec []string) ([]float64, error) {
	out := make([]float64, len(rec))
	for i, s := range rec {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		out[i] = v
	}
	return out, nil
}

// parseBars reads date,open,high,low,close rows; output is sorted as given.
func parseBars(r io.Reader) ([]contracts.Bar, error) {
	rows, err := readRows(r, 5)
	if err != nil {
		return nil, err
	}
	bars := make([]contracts.Bar, 0, len(rows))
	for i, rec := range rows {
		date, err := time.Parse(contracts.DateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q", i+1, rec[0])
		}
		v, err := parseFloats(rec[1:5])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		bars = append(bars, contracts.Bar{Date: date, Open: v[0], High: v[1], Low: v[2], Close: v[3]})
	}
	return bars, nil
}

func parseCalendar(r io.Reader) ([]time.Time, error) {
	rows, err := readRows(r, 1)
	if err != nil {
		return nil, err
	}
	days := make([]time.Time, 0, len(rows))
	for i, rec := range rows {
		d, err := time.Parse(contracts.DateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q", i+1, rec[0])
		}
		days = append(days, d)
	}
	return days, nil
}

// parseTicks keys ticks by instrument; a later row for the same id wins.
func parseTicks(r io.Reader, now time.Time) (map[string]contracts.Tick, error) {
	rows, err := readRows(r, 8)
	if err != nil {
		return nil, err
	}
	ticks := make(map[string]contracts.Tick, len(rows))
	for i, rec := range rows {
		v, err := parseFloats(rec[1:])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		t := contracts.Tick{
			LastPrice: v[0], PrevClose: v[1], Open: v[2], High: v[3], Low: v[4],
			Bid1: v[5], Ask1: v[6], Timestamp: now,
		}
		if len(v) >= 9 {
			t.UpLimit, t.DownLimit = v[7], v[8]
		}
		ticks[strings.TrimSpace(rec[0])] = t
	}
	return ticks, nil
}
