// Package state persists the channel's durable data as a single JSON
// document.
package state

import (
	"encoding/json"
	"fmt"
)

// Document is everything the channel needs to survive a restart. Maps are
// keyed by normalized identity and hold nicks; Plugins holds raw manifest
// YAML keyed by command name. Extra preserves any keys written by other
// tooling so a load/save cycle never destroys them.
type Document struct {
	Users   map[string]string
	Invited map[string]string
	Parked  map[string]string
	Topic   string
	Ideas   []string
	Plugins map[string]string
	Extra   map[string]json.RawMessage
}

func NewDocument() Document {
	return Document{
		Users:   make(map[string]string),
		Invited: make(map[string]string),
		Parked:  make(map[string]string),
		Plugins: make(map[string]string),
	}
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+6)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["users"] = emptyIfNil(d.Users)
	out["invited"] = emptyIfNil(d.Invited)
	out["parked"] = emptyIfNil(d.Parked)
	out["topic"] = d.Topic
	out["ideas"] = d.Ideas
	out["plugins"] = emptyIfNil(d.Plugins)
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = NewDocument()
	known := map[string]any{
		"users":   &d.Users,
		"invited": &d.Invited,
		"parked":  &d.Parked,
		"topic":   &d.Topic,
		"ideas":   &d.Ideas,
		"plugins": &d.Plugins,
	}
	for key, dst := range known {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("state: field %s: %w", key, err)
		}
		delete(raw, key)
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

func emptyIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
