package assemble

import (
	"bytes"
	"io"
	"os"
)

// Document is one downloaded article scan.
type Document interface {
	// Name identifies the document in logs and reports.
	Name() string
	Open() (io.ReadSeekCloser, error)
}

// FileDocument is a document stored at a filesystem path.
type FileDocument string

func (d FileDocument) Name() string { return string(d) }

func (d FileDocument) Open() (io.ReadSeekCloser, error) { return os.Open(string(d)) }

// BytesDocument is a document held in memory.
type BytesDocument struct {
	Label string
	Data  []byte
}

func (d BytesDocument) Name() string { return d.Label }

func (d BytesDocument) Open() (io.ReadSeekCloser, error) {
	return nopCloser{bytes.NewReader(d.Data)}, nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }
