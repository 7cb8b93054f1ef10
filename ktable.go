// Package ktable provides the two fixed-capacity slot tables of a small
// kernel: a table of counting semaphores addressed by integer id, and a
// table of reference counted open files that forward I/O to a pipe or an
// inode backend.
//
// Both tables are sized once and live as long as the process. Running out
// of slots is reported with ErrNoSlot. Broken invariants, such as closing a
// file whose reference count is already zero, panic with *InvariantError.
package ktable

// Tables groups the process-wide semaphore and file tables.
type Tables struct {
	Sems  *SemTable
	Files *FileTable
}

// New builds both tables with every slot free. log brackets the inode
// updates done by the file table.
func New(log Transactor, opts Options) *Tables {
	opts = opts.withDefaults()
	return &Tables{
		Sems:  NewSemTable(opts.SemSlots),
		Files: NewFileTable(log, opts),
	}
}
