package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/punchagan/childrens-park/history"
	"github.com/punchagan/childrens-park/state"
)

func TestInvitedCannotUseMemberCommands(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	if _, err := b.roster.Invite("guest@x.com"); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	for _, line := range []string{",me waves", ",topic hijacked", ",invite friend@x.com", ",alias ghost", ",uptime", ",list", ",idea add plot"} {
		reply := b.Dispatch(ctx, "guest@x.com", line)
		if !strings.Contains(reply, "Only members") {
			t.Fatalf("invited sender ran %q: reply = %q", line, reply)
		}
	}
	if b.queue.Len() != 0 {
		t.Fatalf("invited sender queued broadcasts")
	}
	if _, ok := b.roster.Get("friend@x.com"); ok {
		t.Fatalf("invited sender invited a third party")
	}
	if reply := b.Dispatch(ctx, "guest@x.com", ",topic"); strings.Contains(reply, "hijacked") {
		t.Fatalf("topic changed by invited sender: %q", reply)
	}

	// The help and the subscribe path stay open to invited identities.
	if reply := b.Dispatch(ctx, "guest@x.com", ",help"); !strings.Contains(reply, ",subscribe") {
		t.Fatalf("help blocked for invited sender: %q", reply)
	}
	if reply := b.Dispatch(ctx, "guest@x.com", ",subscribe"); !strings.Contains(reply, "Welcome") {
		t.Fatalf("subscribe blocked for invited sender: %q", reply)
	}
	if reply := b.Dispatch(ctx, "guest@x.com", ",me waves"); reply != "" {
		t.Fatalf("member blocked after subscribing: %q", reply)
	}
}

func TestDNDCommand(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	if reply := b.Dispatch(ctx, "foo@x.com", ",dnd"); !strings.Contains(reply, "parked") {
		t.Fatalf("dnd reply = %q", reply)
	}
	queued := b.queue.Drain()
	if len(queued) != 1 || !strings.Contains(queued[0].Text, "NO PARKING ZONE") {
		t.Fatalf("dnd notice = %+v", queued)
	}

	// Parked members may still run commands but their chat is not relayed.
	if reply := b.Dispatch(ctx, "foo@x.com", "hello"); !strings.Contains(reply, "don't know") {
		t.Fatalf("parked freeform reply = %q", reply)
	}

	if reply := b.Dispatch(ctx, "foo@x.com", ",dnd"); reply != "Welcome back!" {
		t.Fatalf("unpark reply = %q", reply)
	}
}

func TestAliasCommandErrors(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")
	subscribeMember(t, b, "bar@x.com")

	if reply := b.Dispatch(ctx, "foo@x.com", ",alias bar"); !strings.Contains(reply, "taken") {
		t.Fatalf("taken alias reply = %q", reply)
	}
	if reply := b.Dispatch(ctx, "foo@x.com", ",alias "+strings.Repeat("x", 30)); !strings.Contains(reply, "1 to 24") {
		t.Fatalf("long alias reply = %q", reply)
	}
	if reply := b.Dispatch(ctx, "foo@x.com", ",alias"); !strings.Contains(reply, "1 to 24") {
		t.Fatalf("empty alias reply = %q", reply)
	}
}

func TestListCommand(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")
	subscribeMember(t, b, "bar@x.com")
	b.Dispatch(ctx, "bar@x.com", ",dnd")
	if _, err := b.roster.Invite("baz@x.com"); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	reply := b.Dispatch(ctx, "foo@x.com", ",list")
	if !strings.Contains(reply, "Members: foo") {
		t.Fatalf("list missing members: %q", reply)
	}
	if !strings.Contains(reply, "Parked: bar") {
		t.Fatalf("list missing parked: %q", reply)
	}
	if !strings.Contains(reply, "Invited: 1 pending") {
		t.Fatalf("list missing invited: %q", reply)
	}
}

func TestWhoisCommand(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	if reply := b.Dispatch(ctx, "foo@x.com", ",whois foo"); reply != "foo is foo@x.com." {
		t.Fatalf("whois reply = %q", reply)
	}
	if reply := b.Dispatch(ctx, "foo@x.com", ",whois ghost"); !strings.Contains(reply, "Nobody") {
		t.Fatalf("whois unknown reply = %q", reply)
	}
}

func TestMeCommand(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	if reply := b.Dispatch(ctx, "foo@x.com", ",me waves"); reply != "" {
		t.Fatalf("me reply = %q", reply)
	}
	queued := b.queue.Drain()
	if len(queued) != 1 || queued[0].Text != "_foo waves_" || queued[0].SenderNick != "foo" {
		t.Fatalf("me notice = %+v", queued)
	}
}

func TestIdeaCommand(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	if reply := b.Dispatch(ctx, "foo@x.com", ",idea"); !strings.Contains(reply, "No ideas yet") {
		t.Fatalf("empty idea list = %q", reply)
	}
	b.Dispatch(ctx, "foo@x.com", ",idea add ship the bot")
	b.Dispatch(ctx, "foo@x.com", ",idea add write a changelog")

	reply := b.Dispatch(ctx, "foo@x.com", ",idea list")
	if !strings.Contains(reply, "1. ship the bot") || !strings.Contains(reply, "2. write a changelog") {
		t.Fatalf("idea list = %q", reply)
	}

	if reply := b.Dispatch(ctx, "foo@x.com", ",idea remove 1"); !strings.Contains(reply, "Removed") {
		t.Fatalf("idea remove reply = %q", reply)
	}
	if reply := b.Dispatch(ctx, "foo@x.com", ",idea remove 9"); reply != "No such idea." {
		t.Fatalf("idea remove out of range = %q", reply)
	}
	if reply := b.Dispatch(ctx, "foo@x.com", ",idea"); strings.Contains(reply, "ship the bot") {
		t.Fatalf("removed idea still listed: %q", reply)
	}
}

func TestURLsWithoutHistory(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	subscribeMember(t, b, "foo@x.com")

	reply := b.Dispatch(context.Background(), "foo@x.com", ",urls")
	if !strings.Contains(reply, "not available") {
		t.Fatalf("urls without history = %q", reply)
	}
}

func TestHelpListsBuiltins(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	subscribeMember(t, b, "foo@x.com")

	reply := b.Dispatch(context.Background(), "foo@x.com", ",help")
	for _, name := range []string{",subscribe", ",alias", ",invite", ",topic"} {
		if !strings.Contains(reply, name) {
			t.Fatalf("help missing %s:\n%s", name, reply)
		}
	}
	if strings.Contains(reply, ",restart") {
		t.Fatalf("help lists hidden command:\n%s", reply)
	}
}

func TestAddRejectsBadManifest(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	subscribeMember(t, b, "foo@x.com")

	args := ",add name: \",x\"\ndescription: d\nreply: r\nparams: [a, b, c, d]"
	reply := b.Dispatch(context.Background(), "foo@x.com", args)
	if !strings.Contains(reply, "rejected") {
		t.Fatalf("bad manifest reply = %q", reply)
	}
	if reply := b.Dispatch(context.Background(), "foo@x.com", ",x"); !strings.Contains(reply, "don't know") {
		t.Fatalf("rejected manifest was registered: %q", reply)
	}
}

func TestAddCannotShadowProtected(t *testing.T) {
	b, _, _ := newTestBot(t, Options{})
	subscribeMember(t, b, "foo@x.com")

	args := ",add name: \",restart\"\ndescription: impostor\nreply: ha"
	reply := b.Dispatch(context.Background(), "foo@x.com", args)
	if !strings.Contains(reply, "protected") {
		t.Fatalf("shadow attempt reply = %q", reply)
	}
}

func newHistoryBot(t *testing.T) (*Bot, *fakeNetwork) {
	t.Helper()
	dir := t.TempDir()
	store := state.NewFileStore(filepath.Join(dir, "state.json"))
	hist, err := history.Open(filepath.Join(dir, "history.sqlite"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	net := &fakeNetwork{}
	b, err := New(Options{}, Deps{Store: store, History: hist, Network: net})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, net
}

func TestCorrection(t *testing.T) {
	b, _ := newHistoryBot(t)
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	b.Dispatch(ctx, "foo@x.com", "teh cat sat")
	b.queue.Drain()

	if reply := b.Dispatch(ctx, "foo@x.com", "s/teh/the"); reply != "" {
		t.Fatalf("correction reply = %q", reply)
	}
	queued := b.queue.Drain()
	if len(queued) != 1 || queued[0].Text != "_foo meant: the cat sat_" {
		t.Fatalf("correction broadcast = %+v", queued)
	}
}

func TestCorrectionDeletion(t *testing.T) {
	b, _ := newHistoryBot(t)
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	b.Dispatch(ctx, "foo@x.com", "teh the cat sat")
	b.queue.Drain()

	if reply := b.Dispatch(ctx, "foo@x.com", "s/teh /"); reply != "" {
		t.Fatalf("deletion reply = %q", reply)
	}
	queued := b.queue.Drain()
	if len(queued) != 1 || queued[0].Text != "_foo meant: the cat sat_" {
		t.Fatalf("deletion broadcast = %+v", queued)
	}

	// A lone "s/word" is ordinary chat, not a correction.
	b.Dispatch(ctx, "foo@x.com", "s/ome chat")
	queued = b.queue.Drain()
	if len(queued) != 1 || queued[0].Text != "[foo]: s/ome chat" {
		t.Fatalf("non-correction relayed as = %+v", queued)
	}
}

func TestURLsDigest(t *testing.T) {
	b, _ := newHistoryBot(t)
	ctx := context.Background()
	subscribeMember(t, b, "foo@x.com")

	b.Dispatch(ctx, "foo@x.com", "read https://go.dev/blog today")
	reply := b.Dispatch(ctx, "foo@x.com", ",urls")
	if !strings.Contains(reply, "https://go.dev/blog (foo)") {
		t.Fatalf("urls digest = %q", reply)
	}
}
