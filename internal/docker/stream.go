package docker

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/p-arndt/leethack/internal/runtime"
)

const readChunkSize = 32 * 1024

var errStreamClosed = errors.New("exec stream closed")

// execStream adapts a hijacked TTY exec connection to runtime.ExecStream.
// The daemon sends raw terminal bytes with stdout and stderr already merged.
type execStream struct {
	conn   net.Conn
	reader io.Reader
	writer *bufio.Writer

	closed chan struct{}
	once   sync.Once
	buf    []byte
}

func newExecStream(conn net.Conn, reader io.Reader) *execStream {
	return &execStream{
		conn:   conn,
		reader: reader,
		writer: bufio.NewWriter(conn),
		closed: make(chan struct{}),
		buf:    make([]byte, readChunkSize),
	}
}

func (s *execStream) Recv() (runtime.Frame, error) {
	select {
	case <-s.closed:
		return runtime.Frame{}, errStreamClosed
	default:
	}

	n, err := s.reader.Read(s.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, s.buf[:n])
		return runtime.Frame{Kind: runtime.StreamConsole, Data: data}, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return runtime.Frame{}, err
}

func (s *execStream) Write(p []byte) (int, error) {
	return s.writer.Write(p)
}

func (s *execStream) Flush() error {
	return s.writer.Flush()
}

// Close releases the attach connection. It is safe to call more than once.
func (s *execStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
