package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"capchain/storage"
)

var (
	errNilValue      = errors.New("state: nil value")
	errNoTransaction = errors.New("state: no open transaction")
)

// Manager is the transactional, versioned key-value store every engine writes
// through. Mutations land in an in-memory overlay; Begin/Commit/Rollback give
// nested transaction scopes over that overlay, and Flush persists the overlay
// to the backing database while advancing the commit root.
//
// Manager is not safe for concurrent use. The ledger is single-threaded by
// design, so no locking is required.
type Manager struct {
	db     storage.Database
	dirty  map[string][]byte // overlay; nil entry marks a deletion
	frames []frame
	root   [32]byte
	height uint64
}

type preimage struct {
	val     []byte
	inDirty bool
}

type frame map[string]preimage

var (
	metaRootKey   = ethcrypto.Keccak256([]byte("meta/commit-root"))
	metaHeightKey = ethcrypto.Keccak256([]byte("meta/commit-height"))
)

// NewManager creates a state manager over the given database, restoring the
// last committed root and height if present.
func NewManager(db storage.Database) (*Manager, error) {
	m := &Manager{db: db, dirty: make(map[string][]byte)}
	if raw, err := db.Get(metaRootKey); err == nil {
		copy(m.root[:], raw)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if raw, err := db.Get(metaHeightKey); err == nil {
		if err := rlp.DecodeBytes(raw, &m.height); err != nil {
			return nil, fmt.Errorf("state: corrupt height record: %w", err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return m, nil
}

// Root returns the last committed root.
func (m *Manager) Root() [32]byte { return m.root }

// Height returns the last committed block height.
func (m *Manager) Height() uint64 { return m.height }

// MakeKey derives a storage key from a prefix and raw parts. Keys are keccak
// hashed so the key space stays uniform regardless of part lengths.
func MakeKey(prefix string, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += 1 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, ':')
		buf = append(buf, p...)
	}
	return ethcrypto.Keccak256(buf)
}

// Get reads a key through the overlay. The second return reports presence.
func (m *Manager) Get(key []byte) ([]byte, bool, error) {
	if v, ok := m.dirty[string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return append([]byte(nil), v...), true, nil
	}
	v, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put writes a key into the overlay.
func (m *Manager) Put(key, value []byte) error {
	if value == nil {
		return errNilValue
	}
	m.record(key)
	m.dirty[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes a key in the overlay.
func (m *Manager) Delete(key []byte) error {
	m.record(key)
	m.dirty[string(key)] = nil
	return nil
}

func (m *Manager) record(key []byte) {
	if len(m.frames) == 0 {
		return
	}
	f := m.frames[len(m.frames)-1]
	k := string(key)
	if _, seen := f[k]; seen {
		return
	}
	old, ok := m.dirty[k]
	f[k] = preimage{val: old, inDirty: ok}
}

// Begin opens a nested transaction scope.
func (m *Manager) Begin() {
	m.frames = append(m.frames, make(frame))
}

// Commit merges the innermost transaction scope into its parent. Outside the
// outermost scope the mutations simply stay in the overlay for Flush.
func (m *Manager) Commit() error {
	n := len(m.frames)
	if n == 0 {
		return errNoTransaction
	}
	top := m.frames[n-1]
	m.frames = m.frames[:n-1]
	if n > 1 {
		parent := m.frames[n-2]
		for k, p := range top {
			if _, seen := parent[k]; !seen {
				parent[k] = p
			}
		}
	}
	return nil
}

// Rollback restores every key the innermost scope touched to its pre-scope
// overlay state.
func (m *Manager) Rollback() error {
	n := len(m.frames)
	if n == 0 {
		return errNoTransaction
	}
	top := m.frames[n-1]
	m.frames = m.frames[:n-1]
	for k, p := range top {
		if p.inDirty {
			if p.val == nil {
				m.dirty[k] = nil
			} else {
				m.dirty[k] = p.val
			}
		} else {
			delete(m.dirty, k)
		}
	}
	return nil
}

// InTransaction reports whether a transaction scope is open.
func (m *Manager) InTransaction() bool { return len(m.frames) > 0 }

// Flush persists the overlay to the database and advances the commit root.
// The root chains the previous root with every mutation in sorted key order,
// giving each committed block a deterministic version identifier.
func (m *Manager) Flush(height uint64) ([32]byte, error) {
	if len(m.frames) != 0 {
		return [32]byte{}, errors.New("state: flush inside open transaction")
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	acc := append([]byte(nil), m.root[:]...)
	for _, k := range keys {
		v := m.dirty[k]
		if v == nil {
			if err := m.db.Delete([]byte(k)); err != nil {
				return [32]byte{}, err
			}
			acc = ethcrypto.Keccak256(acc, []byte(k), []byte{0x00})
			continue
		}
		if err := m.db.Put([]byte(k), v); err != nil {
			return [32]byte{}, err
		}
		acc = ethcrypto.Keccak256(acc, []byte(k), []byte{0x01}, v)
	}
	m.dirty = make(map[string][]byte)
	copy(m.root[:], acc)
	m.height = height

	if err := m.db.Put(metaRootKey, m.root[:]); err != nil {
		return [32]byte{}, err
	}
	encodedHeight, err := rlp.EncodeToBytes(height)
	if err != nil {
		return [32]byte{}, err
	}
	if err := m.db.Put(metaHeightKey, encodedHeight); err != nil {
		return [32]byte{}, err
	}
	return m.root, nil
}

// --- typed helpers ---

func (m *Manager) getRLP(key []byte, into interface{}) (bool, error) {
	raw, ok, err := m.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, into); err != nil {
		return false, fmt.Errorf("state: decode %x: %w", key[:4], err)
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return m.Put(key, raw)
}

func (m *Manager) getUint64(key []byte) (uint64, error) {
	var v uint64
	if _, err := m.getRLP(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m *Manager) putUint64(key []byte, v uint64) error {
	return m.putRLP(key, v)
}

func (m *Manager) getBigInt(key []byte) (*big.Int, error) {
	v := new(big.Int)
	ok, err := m.getRLP(key, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return v, nil
}

func (m *Manager) putBigInt(key []byte, v *big.Int) error {
	if v == nil {
		v = big.NewInt(0)
	}
	return m.putRLP(key, v)
}
