package console

import (
	"context"
	"strings"
	"testing"

	"github.com/punchagan/childrens-park/transport"
)

func TestRunDeliversNonEmptyLines(t *testing.T) {
	in := strings.NewReader("hello\n\n   \n,help\n")
	c := New("", in, &strings.Builder{})

	var got []transport.Message
	if err := c.Run(context.Background(), func(m transport.Message) {
		got = append(got, m)
	}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Run() delivered %d messages, want 2", len(got))
	}
	if got[0].Sender != DefaultIdentity || got[0].Text != "hello" {
		t.Fatalf("first message = %+v", got[0])
	}
	if got[1].Text != ",help" {
		t.Fatalf("second message = %+v", got[1])
	}
}

func TestSendPrefixesRecipient(t *testing.T) {
	var out strings.Builder
	c := New("me@localhost", strings.NewReader(""), &out)

	if err := c.Send(context.Background(), "me@localhost", "pong"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if out.String() != "-> me@localhost: pong\n" {
		t.Fatalf("Send() wrote %q", out.String())
	}
}
