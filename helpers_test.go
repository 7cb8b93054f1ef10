package ktable_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thetarby/ktable"
)

// requireFatal runs fn and requires it to panic with an invariant violation.
func requireFatal(t *testing.T, fn func()) *ktable.InvariantError {
	t.Helper()
	var v interface{}
	func() {
		defer func() { v = recover() }()
		fn()
	}()
	require.True(t, ktable.IsFatal(v), "expected invariant violation, got %v", v)
	return v.(*ktable.InvariantError)
}

type mockTransactor struct {
	mock.Mock
	tx   sync.Mutex
	open atomic.Bool
}

func newMockTransactor() *mockTransactor {
	m := &mockTransactor{}
	m.On("Begin").Return()
	m.On("Commit").Return()
	return m
}

func (m *mockTransactor) Begin() {
	m.tx.Lock()
	m.open.Store(true)
	m.Called()
}

func (m *mockTransactor) Commit() {
	m.Called()
	m.open.Store(false)
	m.tx.Unlock()
}

type mockInode struct {
	mock.Mock
	sync.Mutex
}

func (m *mockInode) ReadAt(p []byte, off uint32) (int, error) {
	args := m.Called(p, off)
	return args.Int(0), args.Error(1)
}

func (m *mockInode) WriteAt(p []byte, off uint32) (int, error) {
	args := m.Called(p, off)
	return args.Int(0), args.Error(1)
}

func (m *mockInode) Stat() ktable.Stat {
	return m.Called().Get(0).(ktable.Stat)
}

func (m *mockInode) Put() {
	m.Called()
}

type mockPipe struct {
	mock.Mock
}

func (m *mockPipe) Read(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockPipe) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockPipe) Close(writable bool) {
	m.Called(writable)
}
