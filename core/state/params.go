package state

const prefixParam = "meta/param"

// Param reads a raw runtime parameter value.
func (m *Manager) Param(key string) ([]byte, bool, error) {
	return m.Get(MakeKey(prefixParam, []byte(key)))
}

// ParamPut stores a raw runtime parameter value.
func (m *Manager) ParamPut(key string, value []byte) error {
	if len(value) == 0 {
		return m.Delete(MakeKey(prefixParam, []byte(key)))
	}
	return m.Put(MakeKey(prefixParam, []byte(key)), value)
}
