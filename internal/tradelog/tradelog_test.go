package tradelog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
)

func sample(id string, side contracts.Side) contracts.TradeRecord {
	return contracts.TradeRecord{
		InstrumentID: id,
		Timestamp:    time.Date(2024, 5, 10, 10, 15, 0, 0, time.UTC),
		Side:         side,
		Volume:       300,
		Price:        12.345678,
		CostBasis:    11.2,
		RealizedPnL:  337.7034,
		Reason:       contracts.ReasonTakeProfit,
		OrderID:      "ord-1",
	}
}

func TestCSV_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.csv")
	log, err := NewCSV(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, log.Record(ctx, sample("600000", contracts.SideSell)))
	require.NoError(t, log.Record(ctx, sample("000001", contracts.SideBuy)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, "600000,2024-05-10T10:15:00Z,SELL,300,12.3457,11.2000,337.70,take_profit,ord-1", lines[1])

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "000001", recs[1].InstrumentID)
	assert.Equal(t, contracts.SideBuy, recs[1].Side)
	assert.Equal(t, 12.3457, recs[0].Price)
	assert.True(t, recs[0].Timestamp.Equal(sample("", "").Timestamp))
}

func TestReadCSV_Missing(t *testing.T) {
	recs, err := ReadCSV(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRealizedPnL(t *testing.T) {
	assert.Equal(t, 295.0, RealizedPnL(12, 11, 300, 5))
	assert.Equal(t, -0.3, RealizedPnL(10.1, 10.2, 3, 0))
}

type failingSink struct{ err error }

func (f failingSink) Record(context.Context, contracts.TradeRecord) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	path := filepath.Join(t.TempDir(), "t.csv")
	csvSink, err := NewCSV(path)
	require.NoError(t, err)

	err = Multi{failingSink{boom}, csvSink}.Record(context.Background(), sample("a", contracts.SideBuy))
	assert.ErrorIs(t, err, boom)

	recs, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "later sinks still receive the record")
}
