package tradelog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
)

// Header is the CSV column order.
var Header = []string{"instrument", "time", "action", "volume", "price", "cost", "pnl", "reason", "order_id"}

// CSV is an append-only trade log file.
type CSV struct {
	mu   sync.Mutex
	path string
}

// NewCSV creates the parent directory of path if needed.
func NewCSV(path string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trade log dir: %w", err)
	}
	return &CSV{path: path}, nil
}

// Path returns the log location
func (c *CSV) Path() string {
	return c.path
}

func (c *CSV) Record(_ context.Context, rec contracts.TradeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat trade log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write trade log header: %w", err)
		}
	}

	rec = Normalize(rec)
	row := []string{
		rec.InstrumentID,
		rec.Timestamp.Format(time.RFC3339),
		string(rec.Side),
		strconv.FormatInt(rec.Volume, 10),
		strconv.FormatFloat(rec.Price, 'f', 4, 64),
		strconv.FormatFloat(rec.CostBasis, 'f', 4, 64),
		strconv.FormatFloat(rec.RealizedPnL, 'f', 2, 64),
		string(rec.Reason),
		rec.OrderID,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write trade log: %w", err)
	}
	w.Flush()
	return w.Error()
}

// ReadCSV loads every record from path. A missing file yields no records.
func ReadCSV(path string) ([]contracts.TradeRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trade log: %w", err)
	}

	var out []contracts.TradeRecord
	for i, row := range rows {
		if i == 0 && row[0] == Header[0] {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("trade log line %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (contracts.TradeRecord, error) {
	ts, err := time.Parse(time.RFC3339, row[1])
	if err != nil {
		return contracts.TradeRecord{}, err
	}
	volume, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return contracts.TradeRecord{}, err
	}
	var nums [3]float64
	for i, s := range row[4:7] {
		if nums[i], err = strconv.ParseFloat(s, 64); err != nil {
			return contracts.TradeRecord{}, err
		}
	}
	return contracts.TradeRecord{
		InstrumentID: row[0],
		Timestamp:    ts,
		Side:         contracts.Side(row[2]),
		Volume:       volume,
		Price:        nums[0],
		CostBasis:    nums[1],
		RealizedPnL:  nums[2],
		Reason:       contracts.ReasonTag(row[7]),
		OrderID:      row[8],
	}, nil
}
