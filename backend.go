package ktable

// Pipe is the pipe end a file slot forwards to.
type Pipe interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Close drops one reader, or one writer if writable is set.
	Close(writable bool)
}

// Inode is a reference to an on-disk inode. ReadAt, WriteAt and Stat are
// only called between Lock and Unlock. WriteAt and Put are only called inside
// a transaction of the Transactor the file table was built with.
type Inode interface {
	Lock()
	Unlock()
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Stat() Stat
	Put()
}

// Transactor brackets a group of storage updates that must reach disk
// atomically. Begin blocks while another transaction is open.
type Transactor interface {
	Begin()
	Commit()
}

const (
	TDir  = 1
	TFile = 2
	TDev  = 3
)

// Stat is the metadata of an inode.
type Stat struct {
	Type  int16
	Dev   int
	Ino   uint32
	Nlink int16
	Size  uint32
}
