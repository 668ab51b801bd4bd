package state

import (
	"errors"
	"fmt"
)

// StateVersion identifies the expected on-disk schema layout. Increment this
// constant whenever breaking changes are made to the stored structure.
const StateVersion uint32 = 1

// ErrStateVersionMismatch indicates the stored schema version does not match
// the version supported by the current binary.
var ErrStateVersionMismatch = errors.New("state: schema version mismatch")

// SetStateVersion records the provided schema version in state. Callers
// should invoke this after performing any required migrations.
func (m *Manager) SetStateVersion(version uint32) error {
	return m.putUint64(MakeKey(prefixStorageVersion), uint64(version))
}

// StoredStateVersion returns the stored schema version. A fresh database
// reports zero.
func (m *Manager) StoredStateVersion() (uint32, error) {
	stored, err := m.getUint64(MakeKey(prefixStorageVersion))
	if err != nil {
		return 0, err
	}
	return uint32(stored), nil
}

// EnsureStateVersion verifies that the on-disk state version matches the
// version supported by this binary. A fresh database is stamped with the
// current version. When allowMigrate is true, mismatches are tolerated so
// operators can perform manual migrations.
func (m *Manager) EnsureStateVersion(allowMigrate bool) error {
	version, err := m.StoredStateVersion()
	if err != nil {
		return err
	}
	if version == 0 {
		return m.SetStateVersion(StateVersion)
	}
	if version == StateVersion || allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
}
