package boltfs

import (
	"encoding/binary"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/thetarby/ktable"
)

// Inode is an in-memory reference to a stored inode. Its lock serializes
// I/O; its reference count is guarded by the owning FS.
type Inode struct {
	fs  *FS
	mu  sync.Mutex
	ino uint32
	ref int

	typ   int16
	nlink int16
	size  uint32
}

var _ ktable.Inode = (*Inode)(nil)

func (ip *Inode) Lock()   { ip.mu.Lock() }
func (ip *Inode) Unlock() { ip.mu.Unlock() }

func (ip *Inode) Ino() uint32 {
	return ip.ino
}

func (ip *Inode) Stat() ktable.Stat {
	return ktable.Stat{
		Type:  ip.typ,
		Dev:   ip.fs.dev,
		Ino:   ip.ino,
		Nlink: ip.nlink,
		Size:  ip.size,
	}
}

// ReadAt copies the bytes at off into p. Reading at or past the end returns
// 0.
func (ip *Inode) ReadAt(p []byte, off uint32) (int, error) {
	if off >= ip.size {
		return 0, nil
	}
	n := uint32(len(p))
	if off+n > ip.size {
		n = ip.size - off
	}
	var r int
	err := ip.fs.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(dataBucket).Get(key(ip.ino))
		switch have := uint32(len(data)); {
		case have <= off:
			n = 0
		case have < off+n:
			n = have - off
		}
		if n > 0 {
			r = copy(p[:n], data[off:off+n])
		}
		return nil
	})
	return r, err
}

// WriteAt stores p at off, growing the file as needed. It must run inside
// a transaction, and off may not leave a hole.
func (ip *Inode) WriteAt(p []byte, off uint32) (int, error) {
	tx := ip.fs.current()
	if tx == nil {
		return 0, ErrNoTransaction
	}
	if off > ip.size {
		return 0, ErrOffset
	}
	b := tx.Bucket(dataBucket)
	old := b.Get(key(ip.ino))
	end := off + uint32(len(p))
	size := uint32(len(old))
	if end > size {
		size = end
	}
	data := make([]byte, size)
	copy(data, old)
	copy(data[off:], p)
	if err := b.Put(key(ip.ino), data); err != nil {
		return 0, err
	}
	ip.size = size
	return len(p), nil
}

// Link adds a directory reference. It must run inside a transaction.
func (ip *Inode) Link() error {
	return ip.adjustLinks(1)
}

// Unlink drops a directory reference. The inode is deleted when its last
// in-memory reference is put. It must run inside a transaction.
func (ip *Inode) Unlink() error {
	return ip.adjustLinks(-1)
}

func (ip *Inode) adjustLinks(d int16) error {
	tx := ip.fs.current()
	if tx == nil {
		return ErrNoTransaction
	}
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.nlink += d
	return ip.flush(tx)
}

// Put drops a reference. The last reference to an unlinked inode deletes
// it, which must happen inside a transaction.
func (ip *Inode) Put() {
	fs := ip.fs
	fs.mu.Lock()
	ip.ref--
	last := ip.ref == 0
	if last {
		delete(fs.inodes, ip.ino)
	}
	fs.mu.Unlock()
	if !last {
		return
	}
	ip.mu.Lock()
	nlink := ip.nlink
	ip.mu.Unlock()
	if nlink > 0 {
		return
	}

	log := plog.WithField("ino", ip.ino)
	tx := fs.current()
	if tx == nil {
		log.Error("put of unlinked inode outside a transaction")
		return
	}
	for _, name := range [][]byte{inodeBucket, dataBucket} {
		if err := tx.Bucket(name).Delete(key(ip.ino)); err != nil {
			log.WithError(err).Error("failed to free inode")
		}
	}
	log.Debug("freed inode")
}

func (ip *Inode) flush(tx *bbolt.Tx) error {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr[0:], uint16(ip.typ))
	binary.BigEndian.PutUint16(hdr[2:], uint16(ip.nlink))
	return tx.Bucket(inodeBucket).Put(key(ip.ino), hdr)
}
