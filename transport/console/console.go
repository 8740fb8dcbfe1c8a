// Package console is a line-based transport on stdin/stdout for trying the
// bot without an XMPP account.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/punchagan/childrens-park/transport"
)

// DefaultIdentity is the identity every typed line is attributed to.
const DefaultIdentity = "console@localhost"

type Console struct {
	identity string
	in       io.Reader
	mu       sync.Mutex
	out      io.Writer
}

var _ transport.Transport = (*Console)(nil)

func New(identity string, in io.Reader, out io.Writer) *Console {
	if identity == "" {
		identity = DefaultIdentity
	}
	return &Console{identity: identity, in: in, out: out}
}

// Run reads lines until EOF or context cancellation. Each non-empty line
// becomes a message from the console identity.
func (c *Console) Run(ctx context.Context, handle func(transport.Message)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			handle(transport.Message{Sender: c.identity, Text: line})
		}
	}
}

// Send prints the outbound line, prefixed with the recipient so broadcasts
// to several members stay readable.
func (c *Console) Send(ctx context.Context, identity, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "-> %s: %s\n", identity, text)
	return err
}

func (c *Console) Friends(ctx context.Context) ([]string, error) {
	return []string{c.identity}, nil
}

func (c *Console) Invite(ctx context.Context, identity string) error {
	return nil
}

func (c *Console) Close() error {
	return nil
}
