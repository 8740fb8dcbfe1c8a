// Package transport abstracts the chat network the bot talks through. The
// core only needs to receive lines from identities and send lines back; the
// XMPP and console adapters live in subpackages.
package transport

import "context"

// Message is one inbound chat line. Sender is the bare identity of whoever
// wrote it.
type Message struct {
	Sender string
	Text   string
}

// Sender delivers a line of text to a single identity.
type Sender interface {
	Send(ctx context.Context, identity, text string) error
}

// Transport is a connected chat endpoint.
type Transport interface {
	Sender

	// Run blocks, delivering each inbound message to handle, until the
	// context is canceled or the connection fails.
	Run(ctx context.Context, handle func(Message)) error

	// Friends lists the identities on the transport-level contact list.
	Friends(ctx context.Context) ([]string, error)

	// Invite asks the network to add identity to the contact list so it
	// can exchange messages with the bot.
	Invite(ctx context.Context, identity string) error

	Close() error
}
