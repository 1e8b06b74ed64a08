package lens

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// ErrInvalidSession is returned for session names that cannot be used as a key prefix.
var ErrInvalidSession = errors.New("invalid session name")

// Storage persists encoded packet payloads of collector sessions, addressed by session and arrival sequence.
type Storage interface {
	SaveBlob(session string, seq uint64, blob []byte) error
	// LoadBlob returns false when nothing is stored for the sequence.
	LoadBlob(session string, seq uint64) ([]byte, bool, error)
	// Sequences returns the stored sequence numbers of a session in ascending order.
	Sequences(session string) ([]uint64, error)
	// Sessions returns the names of all sessions with stored packets, sorted.
	Sessions() ([]string, error)
	DeleteSession(session string) error
	Close() error
}

func validSession(session string) error {
	if session == "" || strings.IndexByte(session, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return nil
}

// sessionPrefix is the session name followed by a NUL, so one session never matches the prefix of another.
func sessionPrefix(session string) []byte {
	return append([]byte(session), 0)
}

// blobKey appends the big endian sequence so keys of a session iterate in arrival order.
func blobKey(session string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(sessionPrefix(session), seq)
}

func splitBlobKey(key []byte) (string, uint64, bool) {
	i := slices.Index(key, 0)
	if i < 0 || len(key)-i-1 != 8 {
		return "", 0, false
	}
	return string(key[:i]), binary.BigEndian.Uint64(key[i+1:]), true
}

type memStorage struct {
	mu       sync.RWMutex
	sessions map[string]map[uint64][]byte
}

// NewMemStorage returns a Storage kept in process memory, used when no storage directory is configured.
func NewMemStorage() Storage {
	return &memStorage{sessions: make(map[string]map[uint64][]byte)}
}

func (m *memStorage) SaveBlob(session string, seq uint64, blob []byte) error {
	if err := validSession(session); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	blobs, ok := m.sessions[session]
	if !ok {
		blobs = make(map[uint64][]byte)
		m.sessions[session] = blobs
	}
	blobs[seq] = slices.Clone(blob)
	return nil
}

func (m *memStorage) LoadBlob(session string, seq uint64) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.sessions[session][seq]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(blob), true, nil
}

func (m *memStorage) Sequences(session string) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seqs := make([]uint64, 0, len(m.sessions[session]))
	for seq := range m.sessions[session] {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)
	return seqs, nil
}

func (m *memStorage) Sessions() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *memStorage) DeleteSession(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, session)
	return nil
}

func (m *memStorage) Close() error {
	return nil
}

// BadgerOptions configures NewBadgerStorage.
type BadgerOptions struct {
	// MaxMemMB bounds the memtable and cache sizes.
	MaxMemMB int
	// Compression is applied by badger per table block. With options.None every payload is compressed
	// with zstd on its own instead.
	Compression options.CompressionType
	// Persistent keeps the database directory on Close, otherwise it is removed.
	Persistent bool
}

type badgerStorage struct {
	path        string
	db          *badger.DB
	compression options.CompressionType
	persistent  bool
}

// NewBadgerStorage opens or creates a badger database in path.
func NewBadgerStorage(path string, bOpts BadgerOptions) (Storage, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}

	clamp := func(val, lo, high int64) int64 {
		return min(max(val, lo), high)
	}
	maxMemMB := int64(max(bOpts.MaxMemMB, 16))
	var blockCacheSize int64 // only useful when blocks are compressed
	if bOpts.Compression != options.None {
		blockCacheSize = clamp(maxMemMB/8, 2, 64) << 20
	}
	memTableSize := clamp(maxMemMB/4, 4, 32) << 20
	opts := badger.DefaultOptions(path).
		WithCompression(bOpts.Compression).
		WithZSTDCompressionLevel(3).
		WithNumMemtables(2).
		WithMemTableSize(memTableSize).
		WithBaseTableSize(memTableSize).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(clamp(maxMemMB/4, 8, 64) << 20).
		WithValueThreshold(4 << 10). // small text packets stay in the LSM tree
		WithValueLogFileSize(256 << 20).
		WithDetectConflicts(false).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage db failed: %w", err)
	}
	return &badgerStorage{path: path, db: db, compression: bOpts.Compression, persistent: bOpts.Persistent}, nil
}

func (b *badgerStorage) SaveBlob(session string, seq uint64, blob []byte) error {
	if err := validSession(session); err != nil {
		return err
	}
	if b.compression == options.None {
		blob = ZstdCompress(nil, blob)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey(session, seq), blob)
	})
}

func (b *badgerStorage) LoadBlob(session string, seq uint64) ([]byte, bool, error) {
	var stored []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(session, seq))
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("load packet %s/%d failed: %w", session, seq, err)
	}

	if b.compression == options.None {
		blob, err := ZstdDecompress(nil, stored)
		if err != nil {
			return nil, false, fmt.Errorf("decompress packet %s/%d failed: %w", session, seq, err)
		}
		return blob, true, nil
	}
	return stored, true, nil
}

// keyIterator iterates keys only, values are never needed for listing.
func keyIterator(txn *badger.Txn, prefix []byte) *badger.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return txn.NewIterator(opts)
}

func (b *badgerStorage) Sequences(session string) ([]uint64, error) {
	var seqs []uint64
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := sessionPrefix(session)
		it := keyIterator(txn, prefix)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if name, seq, ok := splitBlobKey(it.Item().Key()); ok && name == session {
				seqs = append(seqs, seq)
			}
		}
		return nil
	})
	return seqs, err
}

func (b *badgerStorage) Sessions() ([]string, error) {
	var sessions []string
	err := b.db.View(func(txn *badger.Txn) error {
		it := keyIterator(txn, nil)
		defer it.Close()
		for it.Rewind(); it.Valid(); {
			name, _, ok := splitBlobKey(it.Item().Key())
			if !ok {
				it.Next()
				continue
			}
			sessions = append(sessions, name)
			it.Seek(append([]byte(name), 1)) // skip the remaining packets of this session
		}
		return nil
	})
	return sessions, err
}

func (b *badgerStorage) DeleteSession(session string) error {
	if err := validSession(session); err != nil {
		return err
	}
	return b.db.DropPrefix(sessionPrefix(session))
}

func (b *badgerStorage) Close() error {
	err := b.db.Close()
	if !b.persistent {
		err = errors.Join(err, os.RemoveAll(b.path))
	}
	return err
}
