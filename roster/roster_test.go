package roster

import (
	"errors"
	"testing"
)

func mustInviteSubscribe(t *testing.T, r *Roster, identity string) Participant {
	t.Helper()
	if _, err := r.Invite(identity); err != nil {
		t.Fatalf("Invite(%s) error = %v", identity, err)
	}
	p, err := r.Subscribe(identity)
	if err != nil {
		t.Fatalf("Subscribe(%s) error = %v", identity, err)
	}
	return p
}

func TestSubscribeRequiresInvite(t *testing.T) {
	r := New()
	if _, err := r.Subscribe("bar@bar.com"); !errors.Is(err, ErrNotInvited) {
		t.Fatalf("Subscribe() error = %v, want ErrNotInvited", err)
	}
}

func TestSubscribeAssignsDefaultNick(t *testing.T) {
	r := New()
	p := mustInviteSubscribe(t, r, "bar@bar.com")
	if p.Nick != "bar" {
		t.Fatalf("default nick = %q, want %q", p.Nick, "bar")
	}
	if p.State != StateSubscribed {
		t.Fatalf("state = %q, want subscribed", p.State)
	}
}

func TestInviteExistingMember(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "bar@bar.com")
	if _, err := r.Invite("bar@bar.com"); !errors.Is(err, ErrAlreadyKnown) {
		t.Fatalf("Invite() error = %v, want ErrAlreadyKnown", err)
	}
}

func TestInvitedAndSubscribedAreDisjoint(t *testing.T) {
	r := New()
	ids := []string{"a@x.com", "b@x.com", "c@x.com"}
	for _, id := range ids {
		if _, err := r.Invite(id); err != nil {
			t.Fatalf("Invite(%s) error = %v", id, err)
		}
	}
	if _, err := r.Subscribe("a@x.com"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, _, err := r.ToggleDND("a@x.com"); err != nil {
		t.Fatalf("ToggleDND() error = %v", err)
	}
	if _, err := r.Subscribe("b@x.com"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := r.Unsubscribe("b@x.com"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	seen := map[string]int{}
	for _, p := range r.Subscribers() {
		seen[p.Identity]++
	}
	for _, p := range r.Invited() {
		seen[p.Identity]++
	}
	for _, p := range r.Parked() {
		seen[p.Identity]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("identity %s appears in %d states", id, n)
		}
	}
	if _, ok := r.Get("b@x.com"); ok {
		t.Fatalf("unsubscribed identity still tracked")
	}
}

func TestSetAliasUniqueness(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "foo@x.com")
	mustInviteSubscribe(t, r, "bar@x.com")

	if _, err := r.SetAlias("foo@x.com", "bar"); !errors.Is(err, ErrNickTaken) {
		t.Fatalf("SetAlias() error = %v, want ErrNickTaken", err)
	}
	foo, _ := r.Get("foo@x.com")
	bar, _ := r.Get("bar@x.com")
	if foo.Nick != "foo" || bar.Nick != "bar" {
		t.Fatalf("nicks changed after failed alias: %q %q", foo.Nick, bar.Nick)
	}
}

func TestSetAliasBounds(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "foo@x.com")
	if _, err := r.SetAlias("foo@x.com", "   "); !errors.Is(err, ErrNickTooShort) {
		t.Fatalf("SetAlias(blank) error = %v, want ErrNickTooShort", err)
	}
	if _, err := r.SetAlias("foo@x.com", "abcdefghijklmnopqrstuvwxy"); !errors.Is(err, ErrNickTooLong) {
		t.Fatalf("SetAlias(25 chars) error = %v, want ErrNickTooLong", err)
	}
	p, err := r.SetAlias("foo@x.com", "spaced out")
	if err != nil {
		t.Fatalf("SetAlias() error = %v", err)
	}
	if p.Nick != "spaced_out" {
		t.Fatalf("nick = %q, want spaces folded", p.Nick)
	}
}

func TestUnsubscribeUnknown(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "foo@x.com")
	if _, err := r.Unsubscribe("ghost@x.com"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("Unsubscribe() error = %v, want ErrNotSubscribed", err)
	}
	if got := len(r.Subscribers()); got != 1 {
		t.Fatalf("roster changed by failed unsubscribe: %d subscribers", got)
	}
}

func TestToggleDNDRoundTrip(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "foo@x.com")

	_, parked, err := r.ToggleDND("foo@x.com")
	if err != nil || !parked {
		t.Fatalf("ToggleDND() parked=%v error = %v", parked, err)
	}
	if len(r.Subscribers()) != 0 || len(r.Parked()) != 1 {
		t.Fatalf("parked member still counted as subscriber")
	}

	p, parked, err := r.ToggleDND("foo@x.com")
	if err != nil || parked {
		t.Fatalf("ToggleDND() parked=%v error = %v", parked, err)
	}
	if p.Nick != "foo" {
		t.Fatalf("nick lost across dnd toggle: %q", p.Nick)
	}

	if _, _, err := r.ToggleDND("ghost@x.com"); !errors.Is(err, ErrNotSubscribedOrParked) {
		t.Fatalf("ToggleDND(unknown) error = %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := New()
	mustInviteSubscribe(t, r, "foo@x.com")
	mustInviteSubscribe(t, r, "bar@x.com")
	if _, _, err := r.ToggleDND("bar@x.com"); err != nil {
		t.Fatalf("ToggleDND() error = %v", err)
	}
	if _, err := r.Invite("baz@x.com"); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	users, invited, parked := r.Snapshot()
	restored := New()
	restored.Restore(users, invited, parked)

	if got := restored.Subscribers(); len(got) != 1 || got[0].Identity != "foo@x.com" {
		t.Fatalf("restored subscribers = %+v", got)
	}
	if got := restored.Parked(); len(got) != 1 || got[0].Nick != "bar" {
		t.Fatalf("restored parked = %+v", got)
	}
	if got := restored.Invited(); len(got) != 1 || got[0].Identity != "baz@x.com" {
		t.Fatalf("restored invited = %+v", got)
	}
}
