// Package xmppclient connects the bot to an XMPP server.
package xmppclient

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/roster"
	"mellium.im/xmpp/stanza"

	"github.com/punchagan/childrens-park/transport"
)

type Config struct {
	JID      string
	Password string
	Logger   *slog.Logger
}

// messageBody is a message stanza carrying a chat body.
type messageBody struct {
	stanza.Message
	Body string `xml:"body"`
}

type Client struct {
	session *xmpp.Session
	addr    jid.JID
	logger  *slog.Logger
}

var _ transport.Transport = (*Client)(nil)

// Dial logs in, binds a resource and announces availability.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	addr, err := jid.Parse(cfg.JID)
	if err != nil {
		return nil, fmt.Errorf("xmppclient: parse jid %q: %w", cfg.JID, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	session, err := xmpp.DialClientSession(
		ctx, addr,
		xmpp.BindResource(),
		xmpp.StartTLS(&tls.Config{
			ServerName: addr.Domain().String(),
			MinVersion: tls.VersionTLS12,
		}),
		xmpp.SASL("", cfg.Password, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
	)
	if err != nil {
		return nil, fmt.Errorf("xmppclient: dial session: %w", err)
	}

	if err := session.Send(ctx, stanza.Presence{Type: stanza.AvailablePresence}.Wrap(nil)); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("xmppclient: send presence: %w", err)
	}

	return &Client{session: session, addr: addr, logger: cfg.Logger}, nil
}

// Run serves the stream until the context is canceled or the connection
// drops. Subscription requests are approved automatically; membership is the
// bot's own business, not the server's.
func (c *Client) Run(ctx context.Context, handle func(transport.Message)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.session.Close()
		case <-done:
		}
	}()

	err := c.session.Serve(xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		d := xml.NewTokenDecoder(xmlstream.MultiReader(xmlstream.Token(*start), t))
		if _, err := d.Token(); err != nil {
			return err
		}

		switch start.Name.Local {
		case "presence":
			return c.handlePresence(d, start)
		case "message":
		default:
			return nil
		}

		msg := messageBody{}
		if err := d.DecodeElement(&msg, start); err != nil && !errors.Is(err, io.EOF) {
			c.logger.Warn("decode message failed", "error", err)
			return nil
		}
		if msg.Type == stanza.ErrorMessage || msg.Type == stanza.GroupChatMessage {
			return nil
		}
		if msg.Body == "" {
			return nil
		}
		handle(transport.Message{
			Sender: msg.From.Bare().String(),
			Text:   msg.Body,
		})
		return nil
	}))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) handlePresence(d *xml.Decoder, start *xml.StartElement) error {
	var pres stanza.Presence
	if err := d.DecodeElement(&pres, start); err != nil && !errors.Is(err, io.EOF) {
		return nil
	}
	if pres.Type != stanza.SubscribePresence {
		return nil
	}
	c.logger.Info("approving subscription", "from", pres.From.Bare().String())
	reply := stanza.Presence{To: pres.From.Bare(), Type: stanza.SubscribedPresence}
	return c.session.Send(context.TODO(), reply.Wrap(nil))
}

func (c *Client) Send(ctx context.Context, identity, text string) error {
	to, err := jid.Parse(identity)
	if err != nil {
		return fmt.Errorf("xmppclient: parse recipient %q: %w", identity, err)
	}
	err = c.session.Encode(ctx, messageBody{
		Message: stanza.Message{To: to, Type: stanza.ChatMessage},
		Body:    text,
	})
	if err != nil {
		return fmt.Errorf("xmppclient: send to %s: %w", to.Bare(), err)
	}
	return nil
}

// Friends lists the bare identities on the server-side roster.
func (c *Client) Friends(ctx context.Context) ([]string, error) {
	iter := roster.Fetch(ctx, c.session)
	defer iter.Close()

	var friends []string
	for iter.Next() {
		friends = append(friends, iter.Item().JID.Bare().String())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("xmppclient: fetch roster: %w", err)
	}
	return friends, nil
}

// Invite sends a presence subscription request so the identity lands on the
// server-side roster.
func (c *Client) Invite(ctx context.Context, identity string) error {
	to, err := jid.Parse(identity)
	if err != nil {
		return fmt.Errorf("xmppclient: parse invitee %q: %w", identity, err)
	}
	req := stanza.Presence{To: to.Bare(), Type: stanza.SubscribePresence}
	if err := c.session.Send(ctx, req.Wrap(nil)); err != nil {
		return fmt.Errorf("xmppclient: subscribe to %s: %w", to.Bare(), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("xmppclient: close session: %w", err)
	}
	return nil
}
