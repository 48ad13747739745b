package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// CombinedWriter fans every Write out to all underlying writers. Used to
// tee log output to the rotated log file and stdout at the same time.
type CombinedWriter struct {
	Writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		Writers: writers,
	}
}

// Write writes p to every writer and keeps going past failures, the
// combined error and total written count are returned at the end.
func (cw CombinedWriter) Write(p []byte) (n int, err error) {
	for _, w := range cw.Writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		n += written
	}
	return n, err
}
