package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thetarby/ktable"
	"github.com/thetarby/ktable/boltfs"
	"github.com/thetarby/ktable/pipe"
)

var (
	fileSize int

	fileCmd = &cobra.Command{
		Use:   "file",
		Short: "Write and read back a file through the file table",
		RunE:  fileRun,
	}
)

func init() {
	rootCmd.AddCommand(fileCmd)

	fileCmd.Flags().IntVarP(&fileSize, "size", "n", 4096, `payload size in bytes`)
}

func fileRun(cmd *cobra.Command, args []string) error {
	fs, err := boltfs.Open(singletons.Config.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := fs.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close database")
		}
	}()

	return fileDemo(cmd.OutOrStdout(), newTables(fs).Files, fs, payload(fileSize))
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

// fileDemo stores data in a fresh inode through the file table, reads it
// back through a second reference, then pushes it through a pipe.
func fileDemo(w io.Writer, ft *ktable.FileTable, fs *boltfs.FS, data []byte) error {
	fs.Begin()
	ip, err := fs.Create(ktable.TFile)
	if err == nil {
		// The file only lives as long as it is open.
		err = ip.Unlink()
	}
	fs.Commit()
	if err != nil {
		return err
	}

	f, err := ft.Alloc()
	if err != nil {
		return err
	}
	f.SetInode(ip, true, true)

	n, err := ft.Write(f, data)
	if err != nil {
		ft.Close(f)
		return err
	}
	fmt.Fprintf(w, "wrote %d bytes in chunks of %d\n", n, ft.MaxChunk())

	st, _ := ft.Stat(f)
	fmt.Fprintf(w, "inode %d: type=%d nlink=%d size=%d\n", st.Ino, st.Type, st.Nlink, st.Size)

	// A second open file on the same inode starts at offset zero.
	ip2, err := fs.Get(ip.Ino())
	if err != nil {
		ft.Close(f)
		return err
	}
	r, err := ft.Alloc()
	if err != nil {
		ft.Close(f)
		fs.Begin()
		ip2.Put()
		fs.Commit()
		return err
	}
	r.SetInode(ip2, true, false)
	dup := ft.Dup(r)
	ft.Close(f)

	got, err := readAll(ft, dup)
	ft.Close(dup)
	ft.Close(r)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("read back %d bytes that differ from what was written", len(got))
	}
	fmt.Fprintf(w, "read back %d bytes\n", len(got))

	return pipeDemo(w, ft, data)
}

func pipeDemo(w io.Writer, ft *ktable.FileTable, data []byte) error {
	rf, wf, err := pipe.Alloc(ft)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		defer ft.Close(wf)
		_, err := ft.Write(wf, data)
		return err
	})
	got, err := readAll(ft, rf)
	ft.Close(rf)
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "piped %d bytes\n", len(got))
	return nil
}

func readAll(ft *ktable.FileTable, f *ktable.File) ([]byte, error) {
	var buf bytes.Buffer
	p := make([]byte, 512)
	for {
		n, err := ft.Read(f, p)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return buf.Bytes(), nil
		}
		buf.Write(p[:n])
	}
}
