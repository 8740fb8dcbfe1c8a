package bot

import "errors"

// ErrRestartRequested is returned by Run after an operator issued the
// restart command and the final flush and save completed.
var ErrRestartRequested = errors.New("bot: restart requested")
