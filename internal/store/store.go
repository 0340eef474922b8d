// Package store persists keeper runtime artifacts as JSON files under a
// state directory. Writes go through a temp file plus rename so a crash
// never leaves a half-written snapshot behind.
package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

type RuntimeStatus struct {
	InstanceID  string    `json:"instance_id"`
	ConditionID string    `json:"condition_id"`
	PID         int       `json:"pid"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}

type OpenOrdersSnapshot struct {
	Seq       uint64       `json:"seq"`
	Orders    []core.Order `json:"orders"`
	TakenAt   time.Time    `json:"taken_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type MarketScore struct {
	ConditionID string          `json:"condition_id"`
	Spread      decimal.Decimal `json:"spread"`
	Depth       decimal.Decimal `json:"depth"`
	Volatility  decimal.Decimal `json:"volatility"`
	Volume      decimal.Decimal `json:"volume"`
	Total       decimal.Decimal `json:"total"`
	ScoredAt    time.Time       `json:"scored_at"`
}

type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) SaveRuntimeStatus(status RuntimeStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.runtimeStatusPath(), status)
}

func (s *Store) LoadRuntimeStatus() (RuntimeStatus, bool, error) {
	var status RuntimeStatus
	ok, err := s.loadJSON(s.runtimeStatusPath(), &status)
	return status, ok, err
}

func (s *Store) SaveOpenOrders(snapshot OpenOrdersSnapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	if snapshot.Orders == nil {
		snapshot.Orders = make([]core.Order, 0)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.ordersPath(), snapshot)
}

func (s *Store) LoadOpenOrders() (OpenOrdersSnapshot, bool, error) {
	var snapshot OpenOrdersSnapshot
	ok, err := s.loadJSON(s.ordersPath(), &snapshot)
	if err != nil || !ok {
		return OpenOrdersSnapshot{}, ok, err
	}
	if snapshot.Orders == nil {
		snapshot.Orders = make([]core.Order, 0)
	}
	return snapshot, true, nil
}

func (s *Store) SaveMarketScores(scores []MarketScore) error {
	if scores == nil {
		scores = make([]MarketScore, 0)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.scoresPath(), scores)
}

func (s *Store) LoadMarketScores() ([]MarketScore, bool, error) {
	var scores []MarketScore
	ok, err := s.loadJSON(s.scoresPath(), &scores)
	if err != nil || !ok {
		return nil, ok, err
	}
	if scores == nil {
		scores = make([]MarketScore, 0)
	}
	return scores, true, nil
}

func (s *Store) loadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) runtimeStatusPath() string {
	return filepath.Join(s.root, "runtime_status.json")
}

func (s *Store) ordersPath() string {
	return filepath.Join(s.root, "open_orders.json")
}

func (s *Store) scoresPath() string {
	return filepath.Join(s.root, "market_scores.json")
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return fsyncDirBestEffort(dir, path)
}

func fsyncDirBestEffort(dir, path string) error {
	// Best-effort directory fsync to improve rename durability across crashes.
	d, err := os.Open(dir)
	if err != nil {
		log.Printf(
			"level=WARN event=store_dir_fsync_skipped reason=%q dir=%q target=%q",
			err.Error(),
			dir,
			path,
		)
		return nil
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Printf(
			"level=WARN event=store_dir_fsync_failed reason=%q dir=%q target=%q",
			err.Error(),
			dir,
			path,
		)
		return nil
	}
	return nil
}
