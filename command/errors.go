package command

import "errors"

var (
	ErrNameConflict = errors.New("command: name already registered")
	ErrNotFound     = errors.New("command: not found")
	ErrProtected    = errors.New("command: protected commands cannot be replaced or removed")
	ErrEmptyName    = errors.New("command: name must not be empty")
	ErrNilHandler   = errors.New("command: handler must not be nil")
)
