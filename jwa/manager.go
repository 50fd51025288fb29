package jwa

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xjose"
)

// Manager is the allow-list of algorithms of one category.
// It is immutable after creation and safe for concurrent use.
type Manager[T Named] struct {
	algs  map[string]T
	names []string
}

// SignatureManager is the allow-list of signature algorithms
type SignatureManager = Manager[SignatureAlgorithm]

// KeyManagementManager is the allow-list of key management algorithms
type KeyManagementManager = Manager[KeyManagementAlgorithm]

// ContentEncryptionManager is the allow-list of content encryption algorithms
type ContentEncryptionManager = Manager[ContentEncryptionAlgorithm]

// CompressionManager is the allow-list of compression methods
type CompressionManager = Manager[CompressionMethod]

// NewManager returns Manager with the algorithms.
// Only one algorithm per name is allowed.
func NewManager[T Named](algs ...T) (*Manager[T], error) {
	m := &Manager[T]{
		algs: make(map[string]T, len(algs)),
	}
	for _, alg := range algs {
		name := alg.Name()
		if _, ok := m.algs[name]; ok {
			return nil, errors.Errorf("algorithm already registered: %s", name)
		}
		m.algs[name] = alg
		m.names = append(m.names, name)
	}
	return m, nil
}

// Get returns the algorithm, or ErrUnsupportedAlgorithm
func (m *Manager[T]) Get(name string) (T, error) {
	alg, ok := m.algs[name]
	if !ok {
		var empty T
		return empty, errors.WithMessagef(xjose.ErrUnsupportedAlgorithm, "%q is not allowed", name)
	}
	return alg, nil
}

// Has returns true if the algorithm is allowed
func (m *Manager[T]) Has(name string) bool {
	_, ok := m.algs[name]
	return ok
}

// Names returns the names of the algorithms, in registration order
func (m *Manager[T]) Names() []string {
	return append([]string(nil), m.names...)
}

// List returns the algorithms, in registration order
func (m *Manager[T]) List() []T {
	list := make([]T, 0, len(m.names))
	for _, name := range m.names {
		list = append(list, m.algs[name])
	}
	return list
}

// NewSignatureManager returns allow-list of signature algorithms by names
func NewSignatureManager(names ...string) (*SignatureManager, error) {
	return newManagerByName(names, NewSignatureAlgorithm)
}

// NewKeyManagementManager returns allow-list of key management algorithms by names
func NewKeyManagementManager(names ...string) (*KeyManagementManager, error) {
	return newManagerByName(names, NewKeyManagementAlgorithm)
}

// NewContentEncryptionManager returns allow-list of content encryption algorithms by names
func NewContentEncryptionManager(names ...string) (*ContentEncryptionManager, error) {
	return newManagerByName(names, NewContentEncryptionAlgorithm)
}

// NewCompressionManager returns allow-list of compression methods by names
func NewCompressionManager(names ...string) (*CompressionManager, error) {
	return newManagerByName(names, NewCompressionMethod)
}

func newManagerByName[T Named](names []string, factory func(string) (T, error)) (*Manager[T], error) {
	algs := make([]T, 0, len(names))
	for _, name := range names {
		alg, err := factory(name)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	return NewManager(algs...)
}
