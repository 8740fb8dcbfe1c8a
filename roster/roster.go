// Package roster tracks the bot's own subscriber bookkeeping: who has been
// invited, who is a full member, and who parked themselves with do-not-disturb.
// It is independent of any transport-level friends list.
package roster

import (
	"sort"
	"strings"
	"sync"
)

// MaxNickLen bounds display nicks, matching the transport-safe presence size.
const MaxNickLen = 24

type State string

const (
	StateUnknown    State = "unknown"
	StateInvited    State = "invited"
	StateSubscribed State = "subscribed"
	StateParked     State = "parked"
)

type Participant struct {
	Identity string
	Nick     string
	State    State
}

// Roster is safe for concurrent use. An identity is tracked by at most one
// entry, so it can never be invited and subscribed at the same time.
type Roster struct {
	mu      sync.Mutex
	members map[string]Participant
}

func New() *Roster {
	return &Roster{members: make(map[string]Participant)}
}

// Get returns the tracked participant, if any. Unknown identities report a
// zero Participant with StateUnknown.
func (r *Roster) Get(identity string) (Participant, bool) {
	identity = normalizeIdentity(identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[identity]
	if !ok {
		return Participant{Identity: identity, State: StateUnknown}, false
	}
	return p, true
}

// Invite moves an unknown identity to Invited.
func (r *Roster) Invite(identity string) (Participant, error) {
	identity = normalizeIdentity(identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[identity]; ok {
		return Participant{}, ErrAlreadyKnown
	}
	p := Participant{Identity: identity, State: StateInvited}
	r.members[identity] = p
	return p, nil
}

// Subscribe promotes an invited identity to a full member, assigning a
// default nick derived from the identity's local part.
func (r *Roster) Subscribe(identity string) (Participant, error) {
	identity = normalizeIdentity(identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[identity]
	if !ok || p.State != StateInvited {
		return Participant{}, ErrNotInvited
	}
	p.State = StateSubscribed
	p.Nick = DefaultNick(identity)
	r.members[identity] = p
	return p, nil
}

// Unsubscribe removes a subscribed or parked identity from the roster
// entirely; it must be re-invited to come back.
func (r *Roster) Unsubscribe(identity string) (Participant, error) {
	identity = normalizeIdentity(identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[identity]
	if !ok || (p.State != StateSubscribed && p.State != StateParked) {
		return Participant{}, ErrNotSubscribed
	}
	delete(r.members, identity)
	return p, nil
}

// SetAlias renames a subscribed member. The nick must be 1..MaxNickLen
// characters after spaces are folded to underscores, and unique among
// current subscribers.
func (r *Roster) SetAlias(identity, nick string) (Participant, error) {
	identity = normalizeIdentity(identity)
	nick = NormalizeNick(nick)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[identity]
	if !ok || p.State != StateSubscribed {
		return Participant{}, ErrNotSubscribed
	}
	if len(nick) == 0 {
		return Participant{}, ErrNickTooShort
	}
	if len(nick) > MaxNickLen {
		return Participant{}, ErrNickTooLong
	}
	for id, other := range r.members {
		if id == identity {
			continue
		}
		if other.State == StateSubscribed && other.Nick == nick {
			return Participant{}, ErrNickTaken
		}
	}
	p.Nick = nick
	r.members[identity] = p
	return p, nil
}

// ToggleDND flips a member between Subscribed and Parked. The returned bool
// reports whether the participant is parked after the call.
func (r *Roster) ToggleDND(identity string) (Participant, bool, error) {
	identity = normalizeIdentity(identity)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[identity]
	if !ok {
		return Participant{}, false, ErrNotSubscribedOrParked
	}
	switch p.State {
	case StateSubscribed:
		p.State = StateParked
	case StateParked:
		p.State = StateSubscribed
	default:
		return Participant{}, false, ErrNotSubscribedOrParked
	}
	r.members[identity] = p
	return p, p.State == StateParked, nil
}

// Subscribers returns the full members (not parked), sorted by identity.
func (r *Roster) Subscribers() []Participant {
	return r.byState(StateSubscribed)
}

// Invited returns the pending invitees, sorted by identity.
func (r *Roster) Invited() []Participant {
	return r.byState(StateInvited)
}

// Parked returns the do-not-disturb members, sorted by identity.
func (r *Roster) Parked() []Participant {
	return r.byState(StateParked)
}

func (r *Roster) byState(state State) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.members))
	for _, p := range r.members {
		if p.State == state {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// IdentityByNick resolves a subscriber or parked member by nick.
func (r *Roster) IdentityByNick(nick string) (string, bool) {
	nick = NormalizeNick(nick)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.members {
		if (p.State == StateSubscribed || p.State == StateParked) && p.Nick == nick {
			return id, true
		}
	}
	return "", false
}

// Restore replaces the roster contents from persisted nick maps. Unknown
// states in the input are dropped.
func (r *Roster) Restore(users, invited, parked map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]Participant, len(users)+len(invited)+len(parked))
	for id, nick := range users {
		id = normalizeIdentity(id)
		if id == "" {
			continue
		}
		r.members[id] = Participant{Identity: id, Nick: NormalizeNick(nick), State: StateSubscribed}
	}
	for id, nick := range parked {
		id = normalizeIdentity(id)
		if id == "" {
			continue
		}
		if _, taken := r.members[id]; taken {
			continue
		}
		r.members[id] = Participant{Identity: id, Nick: NormalizeNick(nick), State: StateParked}
	}
	for id := range invited {
		id = normalizeIdentity(id)
		if id == "" {
			continue
		}
		if _, taken := r.members[id]; taken {
			continue
		}
		r.members[id] = Participant{Identity: id, State: StateInvited}
	}
}

// Snapshot exports the roster as nick maps for the state document.
func (r *Roster) Snapshot() (users, invited, parked map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users = make(map[string]string)
	invited = make(map[string]string)
	parked = make(map[string]string)
	for id, p := range r.members {
		switch p.State {
		case StateSubscribed:
			users[id] = p.Nick
		case StateParked:
			parked[id] = p.Nick
		case StateInvited:
			invited[id] = ""
		}
	}
	return users, invited, parked
}

// DefaultNick derives a nick from the local part of an identity, truncated
// to MaxNickLen.
func DefaultNick(identity string) string {
	nick := normalizeIdentity(identity)
	if at := strings.IndexByte(nick, '@'); at >= 0 {
		nick = nick[:at]
	}
	nick = NormalizeNick(nick)
	if len(nick) > MaxNickLen {
		nick = nick[:MaxNickLen]
	}
	return nick
}

// NormalizeNick trims a nick and folds inner spaces to underscores.
func NormalizeNick(nick string) string {
	return strings.ReplaceAll(strings.TrimSpace(nick), " ", "_")
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
