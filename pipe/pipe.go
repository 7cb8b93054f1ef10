// Package pipe is an in-memory pipe backend for ktable file slots.
package pipe

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thetarby/ktable"
)

const Size = 512

var ErrClosed = errors.New("pipe: read end closed")

var plog = logrus.WithField("pkg", "pipe")

// Pipe is a bounded byte queue with one read end and one write end.
type Pipe struct {
	mu        sync.Mutex
	readable  *ktable.WaitChannel // woken when data arrives or the writer leaves
	writable  *ktable.WaitChannel // woken when space frees or the reader leaves
	data      [Size]byte
	nread     uint
	nwrite    uint
	readOpen  bool
	writeOpen bool
}

func New() *Pipe {
	p := &Pipe{readOpen: true, writeOpen: true}
	p.readable = ktable.NewWaitChannel(&p.mu)
	p.writable = ktable.NewWaitChannel(&p.mu)
	return p
}

// Alloc creates a pipe and two file slots for its ends.
func Alloc(ft *ktable.FileTable) (r, w *ktable.File, err error) {
	r, err = ft.Alloc()
	if err != nil {
		return nil, nil, err
	}
	w, err = ft.Alloc()
	if err != nil {
		// r has no backend yet, so closing it only frees the slot.
		ft.Close(r)
		return nil, nil, err
	}
	p := New()
	r.SetPipe(p, true, false)
	w.SetPipe(p, false, true)
	return r, w, nil
}

// Write blocks until all of b is queued. It fails if the read end closes
// first, returning the bytes queued so far.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range b {
		p.writable.WaitWhile(func() bool {
			if p.nwrite != p.nread+Size || !p.readOpen {
				return false
			}
			p.readable.NotifyAll()
			return true
		})
		if !p.readOpen {
			return i, ErrClosed
		}
		p.data[p.nwrite%Size] = b[i]
		p.nwrite++
	}
	p.readable.NotifyAll()
	return len(b), nil
}

// Read blocks until data is available or the write end is closed, then
// copies what it can. It returns 0 at end of stream.
func (p *Pipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readable.WaitWhile(func() bool { return p.nread == p.nwrite && p.writeOpen })
	i := 0
	for ; i < len(b) && p.nread != p.nwrite; i++ {
		b[i] = p.data[p.nread%Size]
		p.nread++
	}
	p.writable.NotifyAll()
	return i, nil
}

// Close closes the write end if writable is set, the read end otherwise.
func (p *Pipe) Close(writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if writable {
		p.writeOpen = false
		p.readable.NotifyAll()
	} else {
		p.readOpen = false
		p.writable.NotifyAll()
	}
	if !p.readOpen && !p.writeOpen {
		plog.Debug("pipe released")
	}
}
