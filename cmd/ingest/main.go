// Command ingest loads daily bars into the postgres bar store. Rows are CSV
// formatted as symbol,date,open,high,low,close,volume with date as
// YYYY-MM-DD; re-running over the same file is idempotent.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/marketdata"
	"main/internal/ops"
	"main/pkg/conn"
)

const batchSize = 500

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	barsPath := flag.String("bars", "-", "CSV file of daily bars ('-' for stdin)")
	flag.Parse()

	if err := run(context.Background(), *configPath, *barsPath); err != nil {
		logs.Errorf("ingest: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, barsPath string) error {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return err
	}
	if loaded.Postgres == nil {
		return fmt.Errorf("config has no postgres database, nowhere to ingest to")
	}

	client, err := conn.New(*loaded.Postgres)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	store, err := marketdata.NewBarStore(client)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if barsPath != "-" {
		f, err := os.Open(barsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = 7

	var batch []marketdata.DailyBar
	var total int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		bar, err := parseBar(record)
		if err != nil {
			logs.Warnf("skip row %v: %v", record, err)
			continue
		}
		batch = append(batch, bar)
		if len(batch) >= batchSize {
			if err := store.Upsert(ctx, batch); err != nil {
				return err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := store.Upsert(ctx, batch); err != nil {
		return err
	}
	total += len(batch)

	logs.Infof("ingested %d daily bars", total)
	return nil
}

func parseBar(record []string) (marketdata.DailyBar, error) {
	if record[0] == "" {
		return marketdata.DailyBar{}, fmt.Errorf("empty symbol")
	}
	if _, err := time.Parse("2006-01-02", record[1]); err != nil {
		return marketdata.DailyBar{}, fmt.Errorf("bad date %q: %w", record[1], err)
	}

	values := make([]float64, 5)
	for i, field := range record[2:] {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return marketdata.DailyBar{}, fmt.Errorf("bad number %q: %w", field, err)
		}
		values[i] = v
	}
	return marketdata.DailyBar{
		Symbol: record[0],
		Date:   record[1],
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
