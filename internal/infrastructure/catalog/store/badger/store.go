package catalogstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-pricestream/internal/infrastructure/catalog"
	"github.com/timshannon/badgerhold/v4"
)

type instrumentStore struct {
	store *badgerhold.Store
	quit  chan struct{}
}

// NewInstrumentStore opens the catalog db under baseDbDir. An empty
// baseDbDir makes the store live in memory.
func NewInstrumentStore(
	baseDbDir string, logger badger.Logger,
) (catalog.InstrumentStore, error) {
	var catalogDir string
	if len(baseDbDir) > 0 {
		catalogDir = filepath.Join(baseDbDir, "catalog")
	}

	store, err := createDb(catalogDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening catalog db: %w", err)
	}

	s := &instrumentStore{store, make(chan struct{})}
	if len(catalogDir) > 0 {
		go s.runValueLogGC()
	}
	return s, nil
}

func (s *instrumentStore) ReplaceInstruments(
	_ context.Context, instruments []catalog.InstrumentInfo,
) error {
	return s.store.Badger().Update(func(tx *badger.Txn) error {
		if err := s.store.TxDeleteMatching(
			tx, &catalog.InstrumentInfo{}, nil,
		); err != nil {
			return err
		}
		for i := range instruments {
			instrument := instruments[i]
			if err := s.store.TxUpsert(
				tx, instrument.Symbol, &instrument,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *instrumentStore) GetInstruments(
	_ context.Context,
) ([]catalog.InstrumentInfo, error) {
	var instruments []catalog.InstrumentInfo
	if err := s.store.Find(&instruments, nil); err != nil {
		return nil, err
	}

	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].Symbol < instruments[j].Symbol
	})
	return instruments, nil
}

func (s *instrumentStore) Close() {
	close(s.quit)
	if err := s.store.Close(); err != nil {
		log.WithError(err).Warn("error while closing catalog db")
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

func (s *instrumentStore) runValueLogGC() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if err := s.store.Badger().RunValueLogGC(0.5); err != nil &&
				err != badger.ErrNoRewrite {
				log.Error(err)
			}
		}
	}
}
