package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/woodtype"
)

const keyPrefix = "woodtype:"

// saveStripes: число блокировок, между которыми распределяются типы дерева
const saveStripes = 64

// ErrNotReady возвращается при обращении к закрытому хранилищу
var ErrNotReady = errors.New("хранилище не готово")

// SnapshotStore хранит снимки типов дерева в BadgerDB
type SnapshotStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	logger  *logging.Logger

	// Снятие снимка и запись одного типа дерева выполняются под одной
	// блокировкой, иначе запоздавший снимок с меньшим набором ролей
	// может перезаписать более свежий.
	saveLocks [saveStripes]sync.Mutex
}

// snapshotKey возвращает ключ снимка: woodtype:<namespace>:<path>
func snapshotKey(id woodtype.Identifier) []byte {
	return []byte(keyPrefix + id.Namespace + ":" + id.Path)
}

// NewSnapshotStore открывает (или создаёт) хранилище в dataPath/woodtypes
func NewSnapshotStore(dataPath string) (*SnapshotStore, error) {
	dbPath := filepath.Join(dataPath, "woodtypes")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &SnapshotStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		logger:  logging.GetStorageLogger(),
	}, nil
}

// Path возвращает каталог базы
func (s *SnapshotStore) Path() string {
	return s.dbPath
}

// Close закрывает хранилище данных
func (s *SnapshotStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}

// Save сохраняет снимок, заменяя предыдущий
func (s *SnapshotStore) Save(snap woodtype.Snapshot) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка %s: %w", snap.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Identifier()), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения снимка %s: %w", snap.ID, err)
	}
	return nil
}

// Load загружает снимок. ok == false, если тип дерева не сохранялся.
func (s *SnapshotStore) Load(id woodtype.Identifier) (woodtype.Snapshot, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var snap woodtype.Snapshot
	if !s.isReady {
		return snap, false, ErrNotReady
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("ошибка загрузки снимка %s: %w", id, err)
	}
	return snap, true, nil
}

// LoadAll возвращает все сохранённые снимки в порядке ключей
func (s *SnapshotStore) LoadAll() ([]woodtype.Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrNotReady
	}

	var snaps []woodtype.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var snap woodtype.Snapshot
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return fmt.Errorf("ключ %s: %w", item.Key(), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения снимков: %w", err)
	}
	return snaps, nil
}

// Observer возвращает наблюдателя реестра, сохраняющего снимок после
// каждой записи компонента. Ошибки только логируются.
func (s *SnapshotStore) Observer() woodtype.Observer {
	return func(ev woodtype.Event) {
		if ev.Kind != woodtype.EventComponentRecorded {
			return
		}
		if err := s.SaveLatest(ev.WoodType); err != nil {
			s.logger.Warn("⚠️ %v", err)
		}
	}
}

// SaveLatest снимает текущее состояние типа дерева и сохраняет его.
// Для одного типа дерева вызовы сериализуются, поэтому последним
// в базу попадает самый поздний снимок.
func (s *SnapshotStore) SaveLatest(wt *woodtype.WoodType) error {
	lock := s.saveLock(wt.ID())
	lock.Lock()
	defer lock.Unlock()
	return s.Save(wt.Snapshot())
}

func (s *SnapshotStore) saveLock(id woodtype.Identifier) *sync.Mutex {
	return &s.saveLocks[xxhash.Sum64(snapshotKey(id))%saveStripes]
}

// ReplayResult: итог восстановления реестра из хранилища
type ReplayResult struct {
	WoodTypes  int
	Components int
	Skipped    int
}

// Replay записывает в реестр все сохранённые компоненты под их сохранёнными
// ролями. Повторный вызов ничего не меняет: запись роли идемпотентна.
func (s *SnapshotStore) Replay(reg *woodtype.Registry) (ReplayResult, error) {
	var res ReplayResult

	snaps, err := s.LoadAll()
	if err != nil {
		return res, err
	}

	for _, snap := range snaps {
		// Пустой path допустим: так Ingest называет тип для блока "_planks"
		id := snap.Identifier()

		types := make([]string, 0, len(snap.Components))
		for t := range snap.Components {
			types = append(types, string(t))
		}
		sort.Strings(types)

		wt := reg.Resolve(id)
		res.WoodTypes++
		for _, t := range types {
			c, err := snap.Components[woodtype.ComponentType(t)].Component()
			if err != nil {
				res.Skipped++
				s.logger.Warn("⚠️ Пропущен компонент %s/%s: %v", id, t, err)
				continue
			}
			reg.Record(wt, woodtype.ComponentType(t), c)
			res.Components++
		}
	}

	s.logger.Info("💾 Восстановлено %d типов дерева, %d компонентов", res.WoodTypes, res.Components)
	return res, nil
}
