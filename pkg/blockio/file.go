package blockio

import (
	"fmt"
	"io"
	"os"
)

// fileFactory backs a Factory with a plain *os.File, the common case: the
// layout lives directly on a block device or in a raw disk image.
type fileFactory struct {
	name   string
	access Access
	f      *os.File
}

func openFile(name string, access Access) (*fileFactory, error) {
	flag := os.O_RDONLY
	if access == ReadWrite {
		flag = os.O_RDWR | os.O_CREATE
	}

	f, err := os.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, err
	}

	return &fileFactory{name: name, access: access, f: f}, nil
}

func (ff *fileFactory) WritableSize() (int64, error) {
	fi, err := ff.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size() / BlockSize * BlockSize, nil
}

func (ff *fileFactory) OpenReader(start, length int64) (Reader, error) {
	return &fileReader{f: ff.f, start: start, length: length}, nil
}

func (ff *fileFactory) OpenWriter(start, length int64) (Writer, error) {
	if ff.access != ReadWrite {
		return nil, fmt.Errorf("blockio: %s was not opened for writing", ff.name)
	}
	return &fileWriter{f: ff.f, start: start, length: length}, nil
}

func (ff *fileFactory) ReplaceStorage(name string) error {
	if err := ff.f.Close(); err != nil {
		return err
	}
	nf, err := openFile(name, ff.access)
	if err != nil {
		return err
	}
	ff.name = nf.name
	ff.f = nf.f
	return nil
}

func (ff *fileFactory) Release() error {
	return ff.f.Close()
}

// fileReader and fileWriter are partial views over one *os.File: each
// tracks its own cursor within [start, start+length). Writes that would
// cross that boundary are refused; reads are cut short at it and return
// io.EOF once the region is consumed.
type fileReader struct {
	f      *os.File
	start  int64
	length int64
	offset int64
}

func (r *fileReader) Read(p []byte) (n int, err error) {
	if r.offset >= r.length {
		return 0, io.EOF
	}
	max := r.length - r.offset
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err = r.f.ReadAt(p, r.start+r.offset)
	r.offset += int64(n)
	return n, err
}

func (r *fileReader) AtEnd() bool {
	return r.offset >= r.length
}

func (r *fileReader) Close() error {
	return nil
}

type fileWriter struct {
	f      *os.File
	start  int64
	length int64
	offset int64
}

func (w *fileWriter) Write(p []byte) (n int, err error) {
	if w.offset+int64(len(p)) > w.length {
		return 0, ErrOutOfRange
	}
	n, err = w.f.WriteAt(p, w.start+w.offset)
	w.offset += int64(n)
	return n, err
}

func (w *fileWriter) WriteZeros(n int64) error {
	if w.offset+n > w.length {
		return ErrOutOfRange
	}
	// writerAt goes through Write, which already advances w.offset.
	_, err := io.CopyN(writerAt{w}, zeroes, n)
	return err
}

func (w *fileWriter) Flush() error {
	return w.f.Sync()
}

func (w *fileWriter) Close() error {
	return nil
}

// writerAt adapts fileWriter to io.Writer for use with io.CopyN, without
// exposing WriteZeros/Flush to the copy.
type writerAt struct {
	w *fileWriter
}

func (wa writerAt) Write(p []byte) (int, error) {
	return wa.w.Write(p)
}
