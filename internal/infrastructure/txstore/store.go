package txstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var keyPrefix = []byte("tx:")

var (
	// ErrRecordNotFound is returned when mutating an unknown id.
	ErrRecordNotFound = errors.New("transaction record not found")
	// ErrInvalidTransition is returned when a mutation would break the lifecycle order.
	ErrInvalidTransition = errors.New("invalid transaction state transition")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("transaction store closed")
)

// LevelDBStore implements port.TransactionStore on LevelDB.
// Each mutation is a single Put, so a record is never half written.
type LevelDBStore struct {
	db  *leveldb.DB
	now func() time.Time

	locksMu sync.Mutex
	locks   map[string]*idLock

	closeMu sync.RWMutex
	closed  bool
}

// idLock serializes mutations of one id. Entries are dropped once no caller holds or waits on them.
type idLock struct {
	mu   sync.Mutex
	refs int
}

var _ port.TransactionStore = (*LevelDBStore)(nil)

func newStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db, now: time.Now, locks: make(map[string]*idLock)}
}

// Open opens (or creates) the store at path.
func Open(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store %s: %w", path, err)
	}
	return newStore(db), nil
}

// OpenMemory opens a store backed by in-memory storage.
func OpenMemory() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory transaction store: %w", err)
	}
	return newStore(db), nil
}

func recordKey(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

func (s *LevelDBStore) lockID(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// Create persists a new INITIATED record.
func (s *LevelDBStore) Create(fromAddress, toAddress, amount string) (*entity.TransactionRecord, error) {
	now := s.now().UTC()
	record := &entity.TransactionRecord{
		ID:          ulid.Make().String(),
		FromAddress: fromAddress,
		ToAddress:   toAddress,
		Amount:      amount,
		State:       entity.TxStateInitiated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	unlock := s.lockID(record.ID)
	defer unlock()

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if err := s.put(record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetByID returns the record and whether it exists.
func (s *LevelDBStore) GetByID(id string) (*entity.TransactionRecord, bool, error) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}

	record, err := s.get(id)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// MarkSent moves an INITIATED record to SENT and sets its txIdentifier.
func (s *LevelDBStore) MarkSent(id, txIdentifier string) (*entity.TransactionRecord, error) {
	if txIdentifier == "" {
		return nil, fmt.Errorf("mark %s sent: empty transaction identifier", id)
	}
	return s.transition(id, entity.TxStateSent, func(r *entity.TransactionRecord) {
		r.TxIdentifier = txIdentifier
	})
}

// MarkCompleted moves a SENT record to COMPLETED.
func (s *LevelDBStore) MarkCompleted(id string) (*entity.TransactionRecord, error) {
	return s.transition(id, entity.TxStateCompleted, nil)
}

// MarkFailed moves an INITIATED or SENT record to FAILED.
func (s *LevelDBStore) MarkFailed(id, message string) (*entity.TransactionRecord, error) {
	return s.transition(id, entity.TxStateFailed, func(r *entity.TransactionRecord) {
		r.ErrorMessage = message
	})
}

func (s *LevelDBStore) transition(id string, next entity.TxState, mutate func(*entity.TransactionRecord)) (*entity.TransactionRecord, error) {
	unlock := s.lockID(id)
	defer unlock()

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	record, err := s.get(id)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !record.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, record.State, next)
	}

	record.State = next
	record.UpdatedAt = s.now().UTC()
	if mutate != nil {
		mutate(record)
	}
	if err := s.put(record); err != nil {
		return nil, err
	}
	return record, nil
}

// ListAll returns every record ordered by creation.
func (s *LevelDBStore) ListAll() ([]entity.TransactionRecord, error) {
	return s.list(func(entity.TransactionRecord) bool { return true })
}

// ListPending returns INITIATED and SENT records ordered by creation.
func (s *LevelDBStore) ListPending() ([]entity.TransactionRecord, error) {
	return s.list(func(r entity.TransactionRecord) bool { return r.State.IsPending() })
}

func (s *LevelDBStore) list(keep func(entity.TransactionRecord) bool) ([]entity.TransactionRecord, error) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	iter := s.db.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer iter.Release()

	records := make([]entity.TransactionRecord, 0)
	for iter.Next() {
		var record entity.TransactionRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", iter.Key(), err)
		}
		if keep(record) {
			records = append(records, record)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction store: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Close waits for running mutations and closes the database.
func (s *LevelDBStore) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *LevelDBStore) get(id string) (*entity.TransactionRecord, error) {
	data, err := s.db.Get(recordKey(id), nil)
	if err != nil {
		return nil, err
	}
	var record entity.TransactionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return &record, nil
}

func (s *LevelDBStore) put(record *entity.TransactionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", record.ID, err)
	}
	if err := s.db.Put(recordKey(record.ID), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to write record %s: %w", record.ID, err)
	}
	return nil
}
