package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/log"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const (
	merchantKeyPrefix  = "merchant:"  // merchant:<id>
	productKeyPrefix   = "product:"   // product:<merchant id>:<url>
	emailKeyPrefix     = "email:"     // email:<merchant id>:<lowercase address>
	policyKeyPrefix    = "policy:"    // policy:<merchant id>
	robotsKeyPrefix    = "robots:"    // robots:<bare domain>
	aggregateKeyPrefix = "aggregate:" // aggregate:<merchant id>
	stateDBDir         = "ratings_db" // Subdirectory suffix within stateDir for Badger DB files
)

// BadgerStore implements the Store interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count, maintained on inserts
	now      func() time.Time
}

// NewBadgerStore opens (or creates) the database for profile under stateDir.
// When reset is true any existing database for that profile is removed first.
func NewBadgerStore(stateDir, profile string, reset bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		now: time.Now,
	}

	dbPath := filepath.Join(stateDir, utils.ProfileDirName(profile)+"_"+stateDBDir)

	if reset {
		logger.Warnf("Reset requested. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Opening state database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger)
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		logger.Debugf("Loaded existing key count: %d", count)
	}

	logger.Info("State database opened successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization)
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// getJSON decodes the value stored under key into a new T. Missing keys yield utils.ErrNotFound.
func getJSON[T any](s *BadgerStore, key []byte) (*T, error) {
	var out *T
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: key '%s'", utils.ErrNotFound, string(key))
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded T
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				return fmt.Errorf("%w: decoding key '%s': %w", utils.ErrParsing, string(key), errJson)
			}
			out = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// putJSON stores v under key, replacing any previous value
func (s *BadgerStore) putJSON(key []byte, v any) error {
	valBytes, errJson := json.Marshal(v)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal value for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		isNew = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		} else if errGet != nil {
			return errGet
		}
		return txn.SetEntry(badger.NewEntry(key, valBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
		return fmt.Errorf("%w: failed setting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// scanPrefix decodes every value under prefix. Undecodable values are logged and skipped.
func scanPrefix[T any](ctx context.Context, s *BadgerStore, prefix []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			errValue := item.Value(func(val []byte) error {
				var decoded T
				if errJson := json.Unmarshal(val, &decoded); errJson != nil {
					s.log.Warnf("Skipping undecodable value for key '%s': %v", string(item.Key()), errJson)
					return nil
				}
				if keep == nil || keep(&decoded) {
					out = append(out, &decoded)
				}
				return nil
			})
			if errValue != nil {
				return fmt.Errorf("%w: reading key '%s': %w", utils.ErrDatabase, string(item.Key()), errValue)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func merchantKey(id string) []byte { return []byte(merchantKeyPrefix + id) }

func productKey(merchantID, productURL string) []byte {
	return []byte(productKeyPrefix + merchantID + ":" + productURL)
}

func emailKey(merchantID, address string) []byte {
	return []byte(emailKeyPrefix + merchantID + ":" + strings.ToLower(address))
}

// --- Merchants ---

// CreateMerchant implements the MerchantStore interface
func (s *BadgerStore) CreateMerchant(m *models.Merchant) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == models.MerchantStatusUnset {
		m.Status = models.MerchantStatusPending
	}
	return s.putJSON(merchantKey(m.ID), m)
}

// GetMerchant implements the MerchantStore interface
func (s *BadgerStore) GetMerchant(id string) (*models.Merchant, error) {
	return getJSON[models.Merchant](s, merchantKey(id))
}

// UpdateMerchant implements the MerchantStore interface
func (s *BadgerStore) UpdateMerchant(m *models.Merchant) error {
	if m.ID == "" {
		return fmt.Errorf("%w: merchant without ID", utils.ErrDatabase)
	}
	m.UpdatedAt = s.now().UTC()
	return s.putJSON(merchantKey(m.ID), m)
}

// ListMerchants implements the MerchantStore interface
func (s *BadgerStore) ListMerchants(ctx context.Context, keep func(*models.Merchant) bool) ([]*models.Merchant, error) {
	merchants, err := scanPrefix(ctx, s, []byte(merchantKeyPrefix), keep)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(merchants, func(i, j int) bool {
		if !merchants[i].CreatedAt.Equal(merchants[j].CreatedAt) {
			return merchants[i].CreatedAt.Before(merchants[j].CreatedAt)
		}
		return merchants[i].ID < merchants[j].ID
	})
	return merchants, nil
}

// --- Product samples ---

// AddProductURL implements the ProductStore interface
func (s *BadgerStore) AddProductURL(merchantID, productURL string) (bool, error) {
	key := productKey(merchantID, productURL)
	sample := &models.ProductSample{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		URL:        productURL,
		CreatedAt:  s.now().UTC(),
	}
	valBytes, errJson := json.Marshal(sample)
	if errJson != nil {
		return false, fmt.Errorf("%w: failed to marshal product sample: %w", utils.ErrParsing, errJson)
	}

	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			errSet := txn.SetEntry(badger.NewEntry(key, valBytes))
			if errSet == nil {
				added = true
			}
			return errSet
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in AddProductURL: %v", err)
		return false, fmt.Errorf("%w: adding product key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// ListProducts implements the ProductStore interface
func (s *BadgerStore) ListProducts(ctx context.Context, merchantID string) ([]*models.ProductSample, error) {
	products, err := scanPrefix[models.ProductSample](ctx, s, []byte(productKeyPrefix+merchantID+":"), nil)
	if err != nil {
		return nil, err
	}
	sortProducts(products)
	return products, nil
}

// ListAllProducts implements the ProductStore interface
func (s *BadgerStore) ListAllProducts(ctx context.Context, keep func(*models.ProductSample) bool) ([]*models.ProductSample, error) {
	products, err := scanPrefix(ctx, s, []byte(productKeyPrefix), keep)
	if err != nil {
		return nil, err
	}
	sortProducts(products)
	return products, nil
}

func sortProducts(products []*models.ProductSample) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
}

// UpdateProduct implements the ProductStore interface
func (s *BadgerStore) UpdateProduct(p *models.ProductSample) error {
	if p.MerchantID == "" || p.URL == "" {
		return fmt.Errorf("%w: product sample without merchant or URL", utils.ErrDatabase)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return s.putJSON(productKey(p.MerchantID, p.URL), p)
}

// --- Contact emails ---

// UpsertEmail implements the EmailStore interface
func (s *BadgerStore) UpsertEmail(e *models.ContactEmail) (bool, error) {
	e.Address = strings.ToLower(strings.TrimSpace(e.Address))
	key := emailKey(e.MerchantID, e.Address)

	created := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		created = false
		record := e
		item, errGet := txn.Get(key)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			if record.ID == "" {
				record.ID = uuid.NewString()
			}
			if record.CreatedAt.IsZero() {
				record.CreatedAt = s.now().UTC()
			}
			created = true
		case errGet != nil:
			return errGet
		default:
			var existing models.ContactEmail
			if errValue := item.Value(func(val []byte) error { return json.Unmarshal(val, &existing) }); errValue != nil {
				return errValue
			}
			changed := false
			if existing.SourceURL == "" && e.SourceURL != "" {
				existing.SourceURL = e.SourceURL
				changed = true
			}
			if existing.Evidence == "" && e.Evidence != "" {
				existing.Evidence = e.Evidence
				changed = true
			}
			if !changed {
				return nil // Populated fields are never overwritten
			}
			record = &existing
		}
		valBytes, errJson := json.Marshal(record)
		if errJson != nil {
			return errJson
		}
		return txn.SetEntry(badger.NewEntry(key, valBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpsertEmail: %v", err)
		return false, fmt.Errorf("%w: upserting email key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if created {
		s.keyCount.Add(1)
	}
	return created, nil
}

// ListEmails implements the EmailStore interface
func (s *BadgerStore) ListEmails(ctx context.Context, merchantID string) ([]*models.ContactEmail, error) {
	return scanPrefix[models.ContactEmail](ctx, s, []byte(emailKeyPrefix+merchantID+":"), nil)
}

// ListAllEmails implements the EmailStore interface
func (s *BadgerStore) ListAllEmails(ctx context.Context, keep func(*models.ContactEmail) bool) ([]*models.ContactEmail, error) {
	return scanPrefix(ctx, s, []byte(emailKeyPrefix), keep)
}

// UpdateEmail implements the EmailStore interface
func (s *BadgerStore) UpdateEmail(e *models.ContactEmail) error {
	if e.MerchantID == "" || e.Address == "" {
		return fmt.Errorf("%w: email without merchant or address", utils.ErrDatabase)
	}
	return s.putJSON(emailKey(e.MerchantID, e.Address), e)
}

// --- Policy snapshots ---

// GetPolicy implements the PolicyStore interface
func (s *BadgerStore) GetPolicy(merchantID string) (*models.PolicySnapshot, error) {
	return getJSON[models.PolicySnapshot](s, []byte(policyKeyPrefix+merchantID))
}

// PutPolicy implements the PolicyStore interface
func (s *BadgerStore) PutPolicy(p *models.PolicySnapshot) error {
	return s.putJSON([]byte(policyKeyPrefix+p.MerchantID), p)
}

// --- Robots cache ---

// GetRobots implements the RobotsStore interface
func (s *BadgerStore) GetRobots(domain string) (*models.RobotsCacheEntry, error) {
	return getJSON[models.RobotsCacheEntry](s, []byte(robotsKeyPrefix+domain))
}

// PutRobots implements the RobotsStore interface
func (s *BadgerStore) PutRobots(entry *models.RobotsCacheEntry) error {
	return s.putJSON([]byte(robotsKeyPrefix+entry.Domain), entry)
}

// --- Aggregates ---

// GetAggregate implements the AggregateStore interface
func (s *BadgerStore) GetAggregate(merchantID string) (*models.BrandAggregate, error) {
	return getJSON[models.BrandAggregate](s, []byte(aggregateKeyPrefix+merchantID))
}

// PutAggregate implements the AggregateStore interface
func (s *BadgerStore) PutAggregate(a *models.BrandAggregate) error {
	return s.putJSON([]byte(aggregateKeyPrefix+a.MerchantID), a)
}

// --- Admin ---

// KeyCount implements the StoreAdmin interface
func (s *BadgerStore) KeyCount() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
				s.log.Debug("BadgerDB GC cycle completed.")
			}

			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// WriteProductURLs implements the StoreAdmin interface
func (s *BadgerStore) WriteProductURLs(ctx context.Context, filePath string) (int, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("create product URL log '%s': %w", filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	written := 0
	var writeErr error

	prefix := []byte(productKeyPrefix)
	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Strip "product:<merchant id>:"
			rest := string(it.Item().Key()[len(prefix):])
			idx := strings.Index(rest, ":")
			if idx < 0 {
				s.log.Warnf("Skipping malformed product key: %s", string(it.Item().Key()))
				continue
			}
			if _, err := writer.WriteString(rest[idx+1:] + "\n"); err != nil && writeErr == nil {
				writeErr = err
			}
			written++
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if iterErr != nil {
		return written, iterErr
	}
	if writeErr != nil {
		return written, fmt.Errorf("write product URL log '%s': %w", filePath, writeErr)
	}
	s.log.Infof("Wrote %d product URLs to %s", written, filePath)
	return written, nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Debug("Closing state DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing state DB: %v", err)
			return err
		}
		return nil
	}
	return nil
}
