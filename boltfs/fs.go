// Package boltfs stores inodes in a bbolt database. It provides the inode
// backend and the transaction boundary used by a ktable.FileTable.
package boltfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/thetarby/ktable"
)

var (
	inodeBucket = []byte("inode")
	dataBucket  = []byte("data")
)

var (
	ErrNoTransaction = errors.New("boltfs: no open transaction")
	ErrNotFound      = errors.New("boltfs: no such inode")
	ErrOffset        = errors.New("boltfs: offset past end of file")
)

var plog = logrus.WithField("pkg", "boltfs")

// FS is an inode store. Begin and Commit bracket its single write
// transaction; bbolt admits one writer at a time, so Begin blocks while
// another transaction is open.
//
// The open transaction is not bound to a goroutine. Create, WriteAt, Link,
// Unlink and a freeing Put use whichever transaction is open, so only the
// goroutine that called Begin may call them until it calls Commit. The
// ErrNoTransaction check only catches calls made while no transaction is
// open at all.
type FS struct {
	db  *bbolt.DB
	dev int

	mu     sync.Mutex // guards inodes and every Inode.ref
	inodes map[uint32]*Inode

	txMu sync.Mutex
	tx   *bbolt.Tx // open write transaction, owned by the caller of Begin
}

var _ ktable.Transactor = (*FS)(nil)

func Open(path string) (*FS, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{inodeBucket, dataBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &FS{
		db:     db,
		dev:    1,
		inodes: make(map[uint32]*Inode),
	}, nil
}

func (fs *FS) Close() error {
	return fs.db.Close()
}

// Path returns the database file name.
func (fs *FS) Path() string {
	return fs.db.Path()
}

func (fs *FS) Begin() {
	tx, err := fs.db.Begin(true)
	if err != nil {
		plog.WithError(err).Panic("failed to begin transaction")
	}
	fs.txMu.Lock()
	fs.tx = tx
	fs.txMu.Unlock()
}

func (fs *FS) Commit() {
	fs.txMu.Lock()
	tx := fs.tx
	fs.tx = nil
	fs.txMu.Unlock()
	if tx == nil {
		plog.Panic("commit without transaction")
	}
	if err := tx.Commit(); err != nil {
		plog.WithError(err).Panic("failed to commit transaction")
	}
}

// current returns the open write transaction, or nil.
func (fs *FS) current() *bbolt.Tx {
	fs.txMu.Lock()
	defer fs.txMu.Unlock()
	return fs.tx
}

// Create allocates a new inode with one link and returns a reference to it.
// It must run inside a transaction.
func (fs *FS) Create(typ int16) (*Inode, error) {
	tx := fs.current()
	if tx == nil {
		return nil, ErrNoTransaction
	}
	seq, err := tx.Bucket(inodeBucket).NextSequence()
	if err != nil {
		return nil, err
	}
	ip := &Inode{fs: fs, ino: uint32(seq), typ: typ, nlink: 1}
	if err := ip.flush(tx); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	ip.ref = 1
	fs.inodes[ip.ino] = ip
	return ip, nil
}

// Get returns a reference to inode ino, loading it if no reference is live.
func (fs *FS) Get(ino uint32) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if ip, ok := fs.inodes[ino]; ok {
		ip.ref++
		return ip, nil
	}

	ip := &Inode{fs: fs, ino: ino}
	err := fs.db.View(func(tx *bbolt.Tx) error {
		hdr := tx.Bucket(inodeBucket).Get(key(ino))
		if hdr == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, ino)
		}
		ip.typ = int16(binary.BigEndian.Uint16(hdr[0:]))
		ip.nlink = int16(binary.BigEndian.Uint16(hdr[2:]))
		ip.size = uint32(len(tx.Bucket(dataBucket).Get(key(ino))))
		return nil
	})
	if err != nil {
		return nil, err
	}
	ip.ref = 1
	fs.inodes[ino] = ip
	return ip, nil
}

func key(ino uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, ino)
	return b
}
