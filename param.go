package ktable

const (
	NSem      = 60  // semaphore slots
	NFile     = 100 // open file slots
	LogSize   = 10  // max data blocks in one storage transaction
	BlockSize = 512 // storage block size in bytes
)

// MaxWriteChunk returns the largest inode write that fits in a single
// transaction: the log must also hold the i-node, an indirect block,
// allocation blocks and 2 blocks of slop for non-aligned writes.
func MaxWriteChunk(logSize, blockSize int) int {
	return ((logSize - 1 - 1 - 2) / 2) * blockSize
}

// Options sizes the tables. Zero fields take the package defaults.
type Options struct {
	SemSlots  int
	FileSlots int
	LogSize   int
	BlockSize int
}

func DefaultOptions() Options {
	return Options{
		SemSlots:  NSem,
		FileSlots: NFile,
		LogSize:   LogSize,
		BlockSize: BlockSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SemSlots <= 0 {
		o.SemSlots = d.SemSlots
	}
	if o.FileSlots <= 0 {
		o.FileSlots = d.FileSlots
	}
	if o.LogSize <= 0 {
		o.LogSize = d.LogSize
	}
	if o.BlockSize <= 0 {
		o.BlockSize = d.BlockSize
	}
	return o
}
