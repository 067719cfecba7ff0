package odrive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/cjeanneret/ddh/internal/debug"
)

// ASCIIController speaks the ODrive ASCII protocol over a byte stream:
//
//	r <property>\n          -> "<value>\n"
//	w <property> <value>\n  -> no reply
//
// Every exchange holds the mutex so replies are never interleaved. The
// protocol carries no request tags, so after a failed exchange the stream is
// resynchronised before the next one: a reply that arrives after a timeout
// must not be taken as the answer to the following request.
type ASCIIController struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	rd     *bufio.Reader
	closer io.Closer
	closed bool
	stale  bool
}

// flusher is implemented by *serial.Port.
type flusher interface {
	Flush() error
}

// maxDrainReads bounds resync on a port that never runs dry.
const maxDrainReads = 64

// NewASCIIController wraps rw. If rw also implements io.Closer, Close closes it.
func NewASCIIController(rw io.ReadWriter) *ASCIIController {
	c := &ASCIIController{rw: rw, rd: bufio.NewReader(rw)}
	if cl, ok := rw.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

func (c *ASCIIController) send(line string) error {
	debug.Protocol("->", line)
	if _, err := io.WriteString(c.rw, line+"\n"); err != nil {
		c.stale = true
		return fmt.Errorf("send %q: %w", line, err)
	}
	return nil
}

func (c *ASCIIController) receive() (string, error) {
	line, err := c.rd.ReadString('\n')
	if err != nil {
		c.stale = true
		return "", fmt.Errorf("receive: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	debug.Protocol("<-", line)
	return line, nil
}

// resync drops buffered input, flushes the port when it can and drains
// whatever is still pending until a read comes back empty.
func (c *ASCIIController) resync() {
	c.rd.Reset(c.rw)
	if f, ok := c.rw.(flusher); ok {
		if err := f.Flush(); err != nil {
			debug.Error(fmt.Errorf("odrive flush: %w", err))
		}
	}
	buf := make([]byte, 256)
	for i := 0; i < maxDrainReads; i++ {
		n, err := c.rw.Read(buf)
		if n > 0 {
			debug.Protocol("<- discarded", strings.TrimRight(string(buf[:n]), "\r\n"))
		}
		if err != nil || n == 0 {
			break
		}
	}
	c.stale = false
}

// begin checks the controller is usable and resynchronises it if the last
// exchange failed.
func (c *ASCIIController) begin() error {
	if c.closed {
		return ErrClosed
	}
	if c.stale {
		c.resync()
	}
	return nil
}

// Read fetches a numeric property.
func (c *ASCIIController) Read(prop string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(); err != nil {
		return 0, err
	}

	if err := c.send("r " + prop); err != nil {
		return 0, err
	}
	reply, err := c.receive()
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(reply, "invalid") || strings.HasPrefix(reply, "unknown") {
		return 0, fmt.Errorf("%w: %s: %s", ErrProtocol, prop, reply)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		// Booleans come back as 0/1 on recent firmware, True/False on old.
		switch strings.TrimSpace(reply) {
		case "True", "true":
			return 1, nil
		case "False", "false":
			return 0, nil
		}
		c.stale = true
		return 0, fmt.Errorf("%w: %s: unparseable reply %q", ErrProtocol, prop, reply)
	}
	return v, nil
}

// Write sets a numeric property. The protocol sends no acknowledgement.
func (c *ASCIIController) Write(prop string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(); err != nil {
		return err
	}
	return c.send(fmt.Sprintf("w %s %s", prop, strconv.FormatFloat(value, 'f', -1, 64)))
}

// Close releases the underlying stream. It is safe to call more than once.
func (c *ASCIIController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
