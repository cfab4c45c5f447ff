// Package cache зеркалирует снимки типов дерева в Redis для внешних потребителей.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/woodtypes/internal/logging"
	"github.com/annel0/woodtypes/internal/woodtype"
)

// MirrorConfig содержит настройки зеркала.
type MirrorConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	Key           string        // Redis hash, в который пишутся снимки
	TTL           time.Duration // 0 означает без истечения
	BatchSize     int           // Столько изменённых типов будят запись раньше интервала
	FlushInterval time.Duration
}

func (c *MirrorConfig) setDefaults() {
	if c.Key == "" {
		c.Key = "woodtypes"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
}

// MirrorStats: счётчики зеркала
type MirrorStats struct {
	Mirrored uint64
	Pending  int
	Errors   uint64
}

// SnapshotMirror пишет снимки в Redis hash (HSET key id json).
// Наблюдатель только помечает тип дерева изменённым; снимок снимается
// в фоновой горутине непосредственно перед записью (Write-Behind), так что
// в Redis всегда уходит последнее состояние, а пометки не теряются.
type SnapshotMirror struct {
	client *redis.Client
	config MirrorConfig
	logger *logging.Logger

	mu    sync.Mutex
	dirty map[woodtype.Identifier]*woodtype.WoodType
	wake  chan struct{}

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mirrored uint64
	errors   uint64
}

// NewSnapshotMirror подключается к Redis и запускает Write-Behind.
func NewSnapshotMirror(config MirrorConfig) (*SnapshotMirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	m := newMirror(rdb, config)
	m.logger.Info("Redis mirror initialized: %s (hash %s)", config.RedisURL, m.config.Key)
	return m, nil
}

func newMirror(client *redis.Client, config MirrorConfig) *SnapshotMirror {
	m := newIdleMirror(client, config)
	m.startWriteBehind()
	return m
}

// newIdleMirror собирает зеркало без фоновой записи
func newIdleMirror(client *redis.Client, config MirrorConfig) *SnapshotMirror {
	config.setDefaults()
	return &SnapshotMirror{
		client: client,
		config: config,
		logger: logging.GetComponentLogger("cache"),
		dirty:  make(map[woodtype.Identifier]*woodtype.WoodType),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Key возвращает имя Redis hash
func (m *SnapshotMirror) Key() string {
	return m.config.Key
}

// Mark помечает тип дерева для записи. Повторные пометки до записи
// схлопываются в одну.
func (m *SnapshotMirror) Mark(wt *woodtype.WoodType) {
	m.mu.Lock()
	m.dirty[wt.ID()] = wt
	n := len(m.dirty)
	m.mu.Unlock()

	if n >= m.config.BatchSize {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// takeDirty забирает помеченные типы и снимает их текущие снимки.
// Пометка, пришедшая после этого, попадёт в следующую запись.
func (m *SnapshotMirror) takeDirty() []woodtype.Snapshot {
	m.mu.Lock()
	dirty := m.dirty
	m.dirty = make(map[woodtype.Identifier]*woodtype.WoodType, len(dirty))
	m.mu.Unlock()

	snaps := make([]woodtype.Snapshot, 0, len(dirty))
	for _, wt := range dirty {
		snaps = append(snaps, wt.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Observer возвращает наблюдателя реестра для зеркалирования снимков
func (m *SnapshotMirror) Observer() woodtype.Observer {
	return func(ev woodtype.Event) {
		switch ev.Kind {
		case woodtype.EventWoodTypeCreated, woodtype.EventComponentRecorded:
			m.Mark(ev.WoodType)
		}
	}
}

// encodeBatch сериализует снимки в поля hash. Более поздний снимок
// того же типа дерева заменяет ранний.
func encodeBatch(snaps []woodtype.Snapshot) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(snaps))
	for _, s := range snaps {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("снимок %s: %w", s.ID, err)
		}
		fields[s.ID] = data
	}
	return fields, nil
}

// decodeSnapshot разбирает значение поля hash
func decodeSnapshot(data []byte) (woodtype.Snapshot, error) {
	var s woodtype.Snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}

// Get читает снимок из Redis. ok == false, если поля нет.
func (m *SnapshotMirror) Get(ctx context.Context, id woodtype.Identifier) (woodtype.Snapshot, bool, error) {
	data, err := m.client.HGet(ctx, m.config.Key, id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return woodtype.Snapshot{}, false, nil
	}
	if err != nil {
		return woodtype.Snapshot{}, false, err
	}
	s, err := decodeSnapshot(data)
	if err != nil {
		return woodtype.Snapshot{}, false, err
	}
	return s, true, nil
}

// All читает все снимки из hash
func (m *SnapshotMirror) All(ctx context.Context) (map[string]woodtype.Snapshot, error) {
	raw, err := m.client.HGetAll(ctx, m.config.Key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]woodtype.Snapshot, len(raw))
	for id, val := range raw {
		s, err := decodeSnapshot([]byte(val))
		if err != nil {
			return nil, fmt.Errorf("поле %s: %w", id, err)
		}
		out[id] = s
	}
	return out, nil
}

// Stats возвращает счётчики зеркала
func (m *SnapshotMirror) Stats() MirrorStats {
	m.mu.Lock()
	pending := len(m.dirty)
	m.mu.Unlock()
	return MirrorStats{
		Mirrored: atomic.LoadUint64(&m.mirrored),
		Pending:  pending,
		Errors:   atomic.LoadUint64(&m.errors),
	}
}

// Close дописывает помеченные типы и закрывает соединение
func (m *SnapshotMirror) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
	})
	return m.client.Close()
}

// startWriteBehind запускает горутину пакетной записи в Redis.
func (m *SnapshotMirror) startWriteBehind() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.FlushInterval)
		defer ticker.Stop()

		flush := func() {
			if batch := m.takeDirty(); len(batch) > 0 {
				m.flush(batch)
			}
		}

		for {
			select {
			case <-m.wake:
				flush()
			case <-ticker.C:
				flush()
			case <-m.stop:
				// Дописываем всё, что успели пометить
				flush()
				return
			}
		}
	}()
}

// flush записывает пачку снимков одним pipeline
func (m *SnapshotMirror) flush(batch []woodtype.Snapshot) {
	fields, err := encodeBatch(batch)
	if err != nil {
		atomic.AddUint64(&m.errors, 1)
		m.logger.Error("Redis mirror encode failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := m.client.Pipeline()
	pipe.HSet(ctx, m.config.Key, fields)
	if m.config.TTL > 0 {
		pipe.Expire(ctx, m.config.Key, m.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		atomic.AddUint64(&m.errors, 1)
		m.logger.Error("Redis mirror batch failed (%d items): %v", len(fields), err)
		return
	}

	atomic.AddUint64(&m.mirrored, uint64(len(fields)))
	m.logger.Debug("Redis mirror: %d снимков записано", len(fields))
}
