package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/pkg/logger"
)

const (
	ledgerFile  = "ledger.json"
	managedFile = "managed.json"
	sessionFile = "session.json"
	dailyPrefix = "daily_state_"
	dailySuffix = ".json"
)

// SessionCounter tracks trading sessions for the rebalance cadence.
type SessionCounter struct {
	Count         int    `json:"count"`
	LastSession   string `json:"last_session"`
	LastRebalance string `json:"last_rebalance"`
}

// Advance counts date once and reports whether it was a new session.
func (c *SessionCounter) Advance(date string) bool {
	if c.LastSession == date {
		return false
	}
	c.Count++
	c.LastSession = date
	return true
}

// Store owns every file under the state directory.
// ⭐ SSOT: 상태 파일 경로/포맷은 여기서만
type Store struct {
	dir     string
	ledger  *JSONFile[position.Ledger]
	managed *JSONFile[contracts.ManagedSet]
	session *JSONFile[SessionCounter]
	logger  *logger.Logger
}

// NewStore creates dir if needed.
func NewStore(dir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %v: %w", dir, err, contracts.ErrStatePersistence)
	}
	return &Store{
		dir:     dir,
		ledger:  NewJSONFile[position.Ledger](filepath.Join(dir, ledgerFile)),
		managed: NewJSONFile[contracts.ManagedSet](filepath.Join(dir, managedFile)),
		session: NewJSONFile[SessionCounter](filepath.Join(dir, sessionFile)),
		logger:  log.WithComponent("state"),
	}, nil
}

// Dir returns the state directory
func (s *Store) Dir() string {
	return s.dir
}

// LedgerFile is the ledger document, usable as a position.LedgerSaver.
func (s *Store) LedgerFile() *JSONFile[position.Ledger] {
	return s.ledger
}

// LoadLedger returns the saved ledger or a fresh one holding initialCash.
func (s *Store) LoadLedger(initialCash float64) (position.Ledger, error) {
	l, ok, err := s.ledger.Load()
	if err != nil {
		return position.NewLedger(initialCash), err
	}
	if !ok {
		s.logger.WithField("cash", initialCash).Info("No ledger found, starting fresh")
		return position.NewLedger(initialCash), nil
	}
	if l.Positions == nil {
		l.Positions = make(map[string]*position.Holding)
	}
	return l, nil
}

// LoadManaged returns the saved managed set (empty when absent).
func (s *Store) LoadManaged() (*contracts.ManagedSet, error) {
	m, ok, err := s.managed.Load()
	if err != nil || !ok {
		return contracts.NewManagedSet(), err
	}
	return &m, nil
}

// SaveManaged persists the managed set.
func (s *Store) SaveManaged(m *contracts.ManagedSet) error {
	return s.managed.Save(*m)
}

// LoadSession returns the session counter (zero when absent).
func (s *Store) LoadSession() (SessionCounter, error) {
	c, _, err := s.session.Load()
	return c, err
}

// SaveSession persists the session counter.
func (s *Store) SaveSession(c SessionCounter) error {
	return s.session.Save(c)
}

func (s *Store) dailyFile(date string) *JSONFile[contracts.DailyRiskState] {
	return NewJSONFile[contracts.DailyRiskState](filepath.Join(s.dir, dailyPrefix+date+dailySuffix))
}

// LoadDaily resumes the state file for date, or returns a fresh state with resumed=false.
func (s *Store) LoadDaily(date string) (*contracts.DailyRiskState, bool, error) {
	d, ok, err := s.dailyFile(date).Load()
	if err != nil || !ok {
		return contracts.NewDailyRiskState(date), false, err
	}
	if d.Instruments == nil {
		d.Instruments = make(map[string]contracts.InstrumentFlags)
	}
	d.Date = date
	return &d, true, nil
}

// SaveDaily persists d under its own date.
func (s *Store) SaveDaily(d *contracts.DailyRiskState) error {
	return s.dailyFile(d.Date).Save(*d)
}

// DailyDates lists the dates that have a daily state file, oldest first.
func (s *Store) DailyDates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %v: %w", s.dir, err, contracts.ErrStatePersistence)
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, dailyPrefix) || !strings.HasSuffix(name, dailySuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, dailyPrefix), dailySuffix)
		if _, err := time.Parse(contracts.DateLayout, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Prune removes daily files dated more than retentionDays before today.
func (s *Store) Prune(today time.Time, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	dates, err := s.DailyDates()
	if err != nil {
		return nil, err
	}

	cutoff := today.AddDate(0, 0, -retentionDays).Format(contracts.DateLayout)
	var removed []string
	for _, date := range dates {
		if date >= cutoff {
			break
		}
		path := filepath.Join(s.dir, dailyPrefix+date+dailySuffix)
		if err := os.Remove(path); err != nil {
			s.logger.WithError(err).WithField("file", path).Warn("Failed to prune daily state")
			continue
		}
		removed = append(removed, date)
	}

	if len(removed) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"removed": len(removed),
			"cutoff":  cutoff,
		}).Info("Pruned daily state files")
	}
	return removed, nil
}
