package ktable_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/thetarby/ktable"
)

func newFileTable(n int) (*ktable.FileTable, *mockTransactor) {
	log := newMockTransactor()
	return ktable.NewFileTable(log, ktable.Options{FileSlots: n}), log
}

func TestMaxWriteChunk(t *testing.T) {
	assert.Equal(t, 1536, ktable.MaxWriteChunk(ktable.LogSize, ktable.BlockSize))
	assert.Equal(t, 3*512, ktable.MaxWriteChunk(10, 512))
	assert.Equal(t, 8*1024, ktable.MaxWriteChunk(20, 1024))

	ft, _ := newFileTable(1)
	assert.Equal(t, 1536, ft.MaxChunk())
}

func TestFileAllocCapacity(t *testing.T) {
	ft, _ := newFileTable(ktable.NFile)
	files := make([]*ktable.File, 0, ktable.NFile)
	for i := 0; i < ktable.NFile; i++ {
		f, err := ft.Alloc()
		require.NoError(t, err)
		assert.Equal(t, 1, ft.Ref(f))
		assert.Equal(t, ktable.KindNone, f.Kind())
		files = append(files, f)
	}
	_, err := ft.Alloc()
	assert.ErrorIs(t, err, ktable.ErrNoSlot)

	// A closed slot is handed out again.
	ft.Close(files[42])
	f, err := ft.Alloc()
	require.NoError(t, err)
	assert.Same(t, files[42], f)
	assert.Equal(t, 1, ft.Ref(f))

	_, err = ft.Alloc()
	assert.ErrorIs(t, err, ktable.ErrNoSlot)
}

func TestFileAllocConcurrent(t *testing.T) {
	const n = 16
	ft, _ := newFileTable(n)

	var mu sync.Mutex
	seen := make(map[*ktable.File]bool)
	var g errgroup.Group
	for i := 0; i < 3*n; i++ {
		g.Go(func() error {
			f, err := ft.Alloc()
			if errors.Is(err, ktable.ErrNoSlot) {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[f] {
				return errors.New("slot handed out twice")
			}
			seen[f] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, n)
}

func TestFileDupClose(t *testing.T) {
	ft, log := newFileTable(2)
	ip := &mockInode{}
	ip.On("Put").Return()

	f, err := ft.Alloc()
	require.NoError(t, err)
	f.SetInode(ip, true, true)

	assert.Same(t, f, ft.Dup(f))
	assert.Equal(t, 2, ft.Ref(f))
	ft.Dup(f)
	assert.Equal(t, 3, ft.Ref(f))

	ft.Close(f)
	ft.Close(f)
	assert.Equal(t, 1, ft.Ref(f))
	ip.AssertNotCalled(t, "Put")

	ft.Close(f)
	assert.Equal(t, 0, ft.Ref(f))
	assert.Equal(t, ktable.KindNone, f.Kind())
	ip.AssertNumberOfCalls(t, "Put", 1)
	log.AssertNumberOfCalls(t, "Begin", 1)
	log.AssertNumberOfCalls(t, "Commit", 1)
}

func TestFileCloseReleasesOnce(t *testing.T) {
	ft, _ := newFileTable(4)
	ip := &mockInode{}
	ip.On("Put").Return()

	f, err := ft.Alloc()
	require.NoError(t, err)
	f.SetInode(ip, true, false)

	const refs = 64
	for i := 1; i < refs; i++ {
		ft.Dup(f)
	}
	var g errgroup.Group
	for i := 0; i < refs; i++ {
		g.Go(func() error {
			ft.Close(f)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 0, ft.Ref(f))
	ip.AssertNumberOfCalls(t, "Put", 1)
}

func TestFileClosePipe(t *testing.T) {
	ft, log := newFileTable(2)
	p := &mockPipe{}
	p.On("Close", true).Return().Once()
	p.On("Close", false).Return().Once()

	r, _ := ft.Alloc()
	r.SetPipe(p, true, false)
	w, _ := ft.Alloc()
	w.SetPipe(p, false, true)

	ft.Close(w)
	ft.Close(r)
	p.AssertExpectations(t)
	log.AssertNotCalled(t, "Begin")
}

func TestFileRefViolationsAreFatal(t *testing.T) {
	ft, _ := newFileTable(1)
	f, err := ft.Alloc()
	require.NoError(t, err)
	ft.Close(f)

	assert.Equal(t, "fileclose", requireFatal(t, func() { ft.Close(f) }).Op)
	assert.Equal(t, "filedup", requireFatal(t, func() { ft.Dup(f) }).Op)

	// The table lock was released on the way out.
	_, err = ft.Alloc()
	assert.NoError(t, err)
}

func TestFileStat(t *testing.T) {
	ft, _ := newFileTable(2)
	want := ktable.Stat{Type: ktable.TFile, Dev: 1, Ino: 7, Nlink: 1, Size: 12}
	ip := &mockInode{}
	ip.On("Stat").Return(want)

	f, _ := ft.Alloc()
	f.SetInode(ip, false, false)
	st, ok := ft.Stat(f)
	assert.True(t, ok)
	assert.Equal(t, want, st)

	pf, _ := ft.Alloc()
	pf.SetPipe(&mockPipe{}, true, false)
	_, ok = ft.Stat(pf)
	assert.False(t, ok)
}

func TestFilePermissions(t *testing.T) {
	ft, _ := newFileTable(2)
	p := &mockPipe{}

	r, _ := ft.Alloc()
	r.SetPipe(p, true, false)
	w, _ := ft.Alloc()
	w.SetPipe(p, false, true)

	_, err := ft.Write(r, []byte("x"))
	assert.ErrorIs(t, err, ktable.ErrNotWritable)
	_, err = ft.Read(w, make([]byte, 1))
	assert.ErrorIs(t, err, ktable.ErrNotReadable)
	p.AssertNotCalled(t, "Read", mock.Anything)
	p.AssertNotCalled(t, "Write", mock.Anything)
}

func TestFilePipeForwarding(t *testing.T) {
	ft, _ := newFileTable(1)
	p := &mockPipe{}
	p.On("Read", mock.Anything).Return(3, nil)
	p.On("Write", []byte("hello")).Return(5, nil)

	f, _ := ft.Alloc()
	f.SetPipe(p, true, true)

	n, err := ft.Read(f, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = ft.Write(f, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint32(0), f.Offset())
}

func TestFileInodeReadAdvancesOffset(t *testing.T) {
	ft, _ := newFileTable(1)
	ip := &mockInode{}
	ip.On("ReadAt", mock.Anything, uint32(0)).Return(4, nil).Once()
	ip.On("ReadAt", mock.Anything, uint32(4)).Return(2, nil).Once()
	ip.On("ReadAt", mock.Anything, uint32(6)).Return(0, nil).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, true, false)

	buf := make([]byte, 4)
	for _, want := range []int{4, 2, 0} {
		n, err := ft.Read(f, buf)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, uint32(6), f.Offset())
	ip.AssertExpectations(t)
}

func TestFileInodeReadError(t *testing.T) {
	ft, _ := newFileTable(1)
	ip := &mockInode{}
	boom := errors.New("boom")
	ip.On("ReadAt", mock.Anything, uint32(0)).Return(0, boom)

	f, _ := ft.Alloc()
	f.SetInode(ip, true, false)
	_, err := ft.Read(f, make([]byte, 4))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint32(0), f.Offset())
}

func TestFileInodeWriteChunks(t *testing.T) {
	ft, log := newFileTable(1)
	max := ft.MaxChunk()
	ip := &mockInode{}
	inTx := func(args mock.Arguments) {
		assert.True(t, log.open.Load(), "WriteAt outside a transaction")
	}
	ip.On("WriteAt", mock.MatchedBy(func(p []byte) bool { return len(p) == max }), uint32(0)).
		Return(max, nil).Run(inTx).Once()
	ip.On("WriteAt", mock.MatchedBy(func(p []byte) bool { return len(p) == max-1 }), uint32(max)).
		Return(max-1, nil).Run(inTx).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, false, true)

	n, err := ft.Write(f, make([]byte, 2*max-1))
	require.NoError(t, err)
	assert.Equal(t, 2*max-1, n)
	assert.Equal(t, uint32(2*max-1), f.Offset())
	ip.AssertExpectations(t)
	log.AssertNumberOfCalls(t, "Begin", 2)
	log.AssertNumberOfCalls(t, "Commit", 2)
}

func TestFileInodeWriteSmall(t *testing.T) {
	ft, log := newFileTable(1)
	ip := &mockInode{}
	ip.On("WriteAt", []byte("abc"), uint32(0)).Return(3, nil).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, false, true)
	n, err := ft.Write(f, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	log.AssertNumberOfCalls(t, "Begin", 1)

	// An empty write opens no transaction.
	n, err = ft.Write(f, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	log.AssertNumberOfCalls(t, "Begin", 1)
}

func TestFileInodeWriteBackendError(t *testing.T) {
	ft, log := newFileTable(1)
	max := ft.MaxChunk()
	boom := errors.New("disk full")
	ip := &mockInode{}
	ip.On("WriteAt", mock.Anything, uint32(0)).Return(max, nil).Once()
	ip.On("WriteAt", mock.Anything, uint32(max)).Return(0, boom).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, false, true)

	n, err := ft.Write(f, make([]byte, 3*max))
	assert.ErrorIs(t, err, ktable.ErrShortTransfer)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, max, n)
	assert.Equal(t, uint32(max), f.Offset())
	ip.AssertExpectations(t)
	log.AssertNumberOfCalls(t, "Commit", 2)
}

func TestFileInodeWritePartialChunkError(t *testing.T) {
	ft, log := newFileTable(1)
	max := ft.MaxChunk()
	boom := errors.New("disk full")
	ip := &mockInode{}
	ip.On("WriteAt", mock.Anything, uint32(0)).Return(max, nil).Once()
	ip.On("WriteAt", mock.Anything, uint32(max)).Return(100, boom).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, false, true)

	n, err := ft.Write(f, make([]byte, 3*max))
	assert.ErrorIs(t, err, ktable.ErrShortTransfer)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, max+100, n)
	assert.Equal(t, uint32(n), f.Offset())
	ip.AssertExpectations(t)
	log.AssertNumberOfCalls(t, "Commit", 2)
}

func TestFileInodeShortWriteIsFatal(t *testing.T) {
	ft, log := newFileTable(1)
	ip := &mockInode{}
	ip.On("WriteAt", mock.Anything, uint32(0)).Return(2, nil).Once()

	f, _ := ft.Alloc()
	f.SetInode(ip, false, true)

	e := requireFatal(t, func() { ft.Write(f, []byte("abcd")) })
	assert.Equal(t, "filewrite", e.Op)
	// The transaction was still committed.
	log.AssertNumberOfCalls(t, "Commit", 1)
	assert.False(t, log.open.Load())
}
