package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thetarby/ktable"
)

var (
	semCmd = &cobra.Command{
		Use:   "sem",
		Short: "Two waiters and one poster share a semaphore",
		RunE:  semRun,
	}
)

func init() {
	rootCmd.AddCommand(semCmd)
}

func semRun(cmd *cobra.Command, args []string) error {
	t := newTables(nil)
	return semDemo(cmd.OutOrStdout(), t.Sems, singletons.Config.PostDelay)
}

type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

// semDemo initializes a semaphore to zero and lets a parent and a child wait
// on it while another child posts twice, delay apart. Both waiters must get
// through, after which the counter is back at zero.
func semDemo(w io.Writer, sems *ktable.SemTable, delay time.Duration) error {
	out := &printer{w: w}

	sem, err := sems.Alloc()
	if err != nil {
		return err
	}
	out.printf("[parent] semaphore created, id=%d", sem)
	sems.Init(sem, 0)

	var g errgroup.Group
	g.Go(func() error {
		out.printf("[parent] sem_wait")
		sems.Wait(sem)
		out.printf("[parent] woke up")
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 2; i++ {
			out.printf("[child1] sleeping %v", delay)
			time.Sleep(delay)
			out.printf("[child1] sem_post")
			sems.Post(sem)
		}
		return nil
	})
	g.Go(func() error {
		out.printf("[child2] sem_wait")
		sems.Wait(sem)
		out.printf("[child2] woke up")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if v := sems.Value(sem); v != 0 {
		return fmt.Errorf("semaphore %d left at %d", sem, v)
	}
	sems.Destroy(sem)
	out.printf("[parent] semaphore %d destroyed", sem)
	return nil
}
