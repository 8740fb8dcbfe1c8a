package roster

import "errors"

var (
	ErrAlreadyKnown          = errors.New("roster: participant already invited or subscribed")
	ErrNotInvited            = errors.New("roster: participant was not invited")
	ErrNotSubscribed         = errors.New("roster: participant is not subscribed")
	ErrNotSubscribedOrParked = errors.New("roster: participant is neither subscribed nor parked")
	ErrNickTaken             = errors.New("roster: nick already taken")
	ErrNickTooShort          = errors.New("roster: nick too short")
	ErrNickTooLong           = errors.New("roster: nick too long")
)
