package dbbadger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/multierr"
)

const (
	marketsDir   = "markets"
	positionsDir = "positions"
	versesDir    = "verses"

	gcInterval = 30 * time.Minute
)

type repoManager struct {
	stores []*badgerhold.Store
	stop   chan struct{}

	marketRepository   domain.MarketRepository
	positionRepository domain.PositionRepository
	verseRepository    domain.VerseRepository
}

// NewRepoManager opens (or creates if not exists) one badger store per
// repository under baseDbDir. An empty baseDbDir keeps everything in
// memory.
func NewRepoManager(
	baseDbDir string, logger badger.Logger,
) (ports.RepoManager, error) {
	stop := make(chan struct{})
	stores := make([]*badgerhold.Store, 0, 3)
	open := func(name string) (*badgerhold.Store, error) {
		var dir string
		if len(baseDbDir) > 0 {
			dir = filepath.Join(baseDbDir, name)
		}
		store, err := createDb(dir, logger, stop)
		if err != nil {
			return nil, fmt.Errorf("opening %s db: %w", name, err)
		}
		stores = append(stores, store)
		return store, nil
	}
	closeAll := func() {
		close(stop)
		for _, s := range stores {
			s.Close()
		}
	}

	marketStore, err := open(marketsDir)
	if err != nil {
		closeAll()
		return nil, err
	}
	positionStore, err := open(positionsDir)
	if err != nil {
		closeAll()
		return nil, err
	}
	verseStore, err := open(versesDir)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &repoManager{
		stores:             stores,
		stop:               stop,
		marketRepository:   NewMarketRepositoryImpl(marketStore),
		positionRepository: NewPositionRepositoryImpl(positionStore),
		verseRepository:    NewVerseRepositoryImpl(verseStore),
	}, nil
}

func (r *repoManager) MarketRepository() domain.MarketRepository {
	return r.marketRepository
}

func (r *repoManager) PositionRepository() domain.PositionRepository {
	return r.positionRepository
}

func (r *repoManager) VerseRepository() domain.VerseRepository {
	return r.verseRepository
}

func (r *repoManager) Close() error {
	close(r.stop)
	var err error
	for _, s := range r.stores {
		err = multierr.Append(err, s.Close())
	}
	return err
}

func createDb(
	dbDir string, logger badger.Logger, stop <-chan struct{},
) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					if err := db.Badger().RunValueLogGC(0.5); err != nil &&
						err != badger.ErrNoRewrite {
						log.Error(err)
					}
				}
			}
		}()
	}

	return db, nil
}
