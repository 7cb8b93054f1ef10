package ktable

import (
	"fmt"
	"sync"
)

type Kind int

const (
	KindNone Kind = iota
	KindPipe
	KindInode
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPipe:
		return "pipe"
	case KindInode:
		return "inode"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// File is one slot of a FileTable. A *File returned by Alloc or Dup is a
// counted reference and must be given back with Close.
type File struct {
	kind     Kind
	ref      int // guarded by the table lock
	readable bool
	writable bool
	pipe     Pipe
	ip       Inode
	off      uint32 // guarded by ip's lock
}

// SetPipe attaches a pipe end. Only the owner of a freshly allocated slot
// may call it, before handing the file to anyone else.
func (f *File) SetPipe(p Pipe, readable, writable bool) {
	f.kind = KindPipe
	f.pipe = p
	f.readable = readable
	f.writable = writable
}

// SetInode attaches an inode reference, which the file then owns: it is
// put when the last reference to the file is closed.
func (f *File) SetInode(ip Inode, readable, writable bool) {
	f.kind = KindInode
	f.ip = ip
	f.off = 0
	f.readable = readable
	f.writable = writable
}

func (f *File) Kind() Kind {
	return f.kind
}

func (f *File) Readable() bool { return f.readable }
func (f *File) Writable() bool { return f.writable }

// Offset returns the read/write cursor of an inode file.
func (f *File) Offset() uint32 {
	if f.kind != KindInode {
		return 0
	}
	f.ip.Lock()
	defer f.ip.Unlock()
	return f.off
}

// FileTable is a fixed set of reference counted open files. One lock covers
// the reference counts of every slot since allocation scans them all.
type FileTable struct {
	mu       sync.Mutex
	files    []File
	log      Transactor
	maxChunk int
}

func NewFileTable(log Transactor, opts Options) *FileTable {
	opts = opts.withDefaults()
	max := MaxWriteChunk(opts.LogSize, opts.BlockSize)
	if max <= 0 {
		max = opts.BlockSize
	}
	return &FileTable{
		files:    make([]File, opts.FileSlots),
		log:      log,
		maxChunk: max,
	}
}

// Len returns the number of slots.
func (t *FileTable) Len() int {
	return len(t.files)
}

// MaxChunk returns the largest inode write done in one transaction.
func (t *FileTable) MaxChunk() int {
	return t.maxChunk
}

// Alloc takes a free slot with a reference count of one. The caller sets it
// up with SetPipe or SetInode.
func (t *FileTable) Alloc() (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.files {
		f := &t.files[i]
		if f.ref == 0 {
			*f = File{ref: 1}
			return f, nil
		}
	}
	plog.WithField("slots", len(t.files)).Debug("file table exhausted")
	return nil, ErrNoSlot
}

// Dup adds a reference to f.
func (t *FileTable) Dup(f *File) *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.ref < 1 {
		fatal("filedup", "reference count %d", f.ref)
	}
	f.ref++
	return f
}

// Ref returns the current reference count of f.
func (t *FileTable) Ref(f *File) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return f.ref
}

// Close drops a reference to f. The last close frees the slot and then,
// outside the table lock, releases the backend.
func (t *FileTable) Close(f *File) {
	t.mu.Lock()
	if f.ref < 1 {
		t.mu.Unlock()
		fatal("fileclose", "reference count %d", f.ref)
	}
	f.ref--
	if f.ref > 0 {
		t.mu.Unlock()
		return
	}
	ff := *f
	f.ref = 0
	f.kind = KindNone
	f.pipe = nil
	f.ip = nil
	t.mu.Unlock()

	switch ff.kind {
	case KindPipe:
		ff.pipe.Close(ff.writable)
	case KindInode:
		t.inTransaction(ff.ip.Put)
	}
	plog.WithField("kind", ff.kind).Debug("released file")
}

// Stat returns the metadata of an inode file. ok is false for other kinds.
func (t *FileTable) Stat(f *File) (st Stat, ok bool) {
	if f.kind != KindInode {
		return Stat{}, false
	}
	f.ip.Lock()
	defer f.ip.Unlock()
	return f.ip.Stat(), true
}

// Read reads up to len(p) bytes. Zero or a short count is not an error; it
// marks end of data or a partial transfer.
func (t *FileTable) Read(f *File, p []byte) (int, error) {
	if !f.readable {
		return 0, ErrNotReadable
	}
	switch f.kind {
	case KindPipe:
		return f.pipe.Read(p)
	case KindInode:
		f.ip.Lock()
		defer f.ip.Unlock()
		r, err := f.ip.ReadAt(p, f.off)
		if r > 0 {
			f.off += uint32(r)
		}
		return r, err
	}
	fatal("fileread", "readable file of kind %v", f.kind)
	return 0, nil
}

// Write writes all of p. Inode writes are split into chunks of at most
// MaxChunk bytes, each in its own transaction, so a failure part way leaves
// what was written so far committed. The count returned with
// ErrShortTransfer is how far the offset moved.
func (t *FileTable) Write(f *File, p []byte) (int, error) {
	if !f.writable {
		return 0, ErrNotWritable
	}
	switch f.kind {
	case KindPipe:
		return f.pipe.Write(p)
	case KindInode:
		n := len(p)
		i := 0
		for i < n {
			n1 := n - i
			if n1 > t.maxChunk {
				n1 = t.maxChunk
			}
			r, err := t.writeChunk(f, p[i:i+n1])
			if err != nil {
				if r > 0 {
					i += r
				}
				return i, fmt.Errorf("%w: %d of %d bytes: %w", ErrShortTransfer, i, n, err)
			}
			if r != n1 {
				fatal("filewrite", "short write: %d of %d bytes", r, n1)
			}
			i += r
		}
		return n, nil
	}
	fatal("filewrite", "writable file of kind %v", f.kind)
	return 0, nil
}

func (t *FileTable) writeChunk(f *File, p []byte) (r int, err error) {
	t.inTransaction(func() {
		f.ip.Lock()
		defer f.ip.Unlock()
		r, err = f.ip.WriteAt(p, f.off)
		if r > 0 {
			f.off += uint32(r)
		}
	})
	return r, err
}

// inTransaction runs fn inside a storage transaction. The commit is deferred
// so that it also runs if fn panics.
func (t *FileTable) inTransaction(fn func()) {
	t.log.Begin()
	defer t.log.Commit()
	fn()
}
