package plugin

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/punchagan/childrens-park/command"
)

// Env supplies the pieces of the running channel a compiled command may use.
type Env struct {
	Channel string
	// Nick resolves a sender identity to its display nick; may be nil.
	Nick func(identity string) string
	// Broadcast queues text for everyone, tagged with the sender's nick so
	// delivery can skip echoing it. Required when the manifest has a
	// broadcast template.
	Broadcast func(text, senderNick string)
}

type templateData struct {
	Sender  string
	Nick    string
	Args    string
	Channel string
}

// Compile turns a validated manifest into a registrable command. Template
// fields outside the declared params render empty.
func Compile(m Manifest, env Env) (command.Command, error) {
	reply, err := parseTemplate(m.Name, "reply", m.Reply)
	if err != nil {
		return command.Command{}, err
	}
	broadcast, err := parseTemplate(m.Name, "broadcast", m.Broadcast)
	if err != nil {
		return command.Command{}, err
	}

	handler := func(ctx context.Context, sender, args string) (string, error) {
		data := templateData{Channel: env.Channel}
		if m.WantsArgs() {
			data.Args = strings.TrimSpace(args)
		}
		if m.WantsSender() {
			data.Sender = sender
			if env.Nick != nil {
				data.Nick = env.Nick(sender)
			}
		}

		if broadcast != nil && env.Broadcast != nil {
			text, err := render(broadcast, data)
			if err != nil {
				return "", err
			}
			if text != "" {
				env.Broadcast(text, data.Nick)
			}
		}
		if reply == nil {
			return "", nil
		}
		return render(reply, data)
	}

	return command.Command{
		Name:        m.Name,
		Description: m.Description,
		Hidden:      m.Hidden,
		Handler:     handler,
	}, nil
}

func parseTemplate(cmd, field, text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}
	tmpl, err := template.New(cmd + "/" + field).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("plugin: parse %s template for %s: %w", field, cmd, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("plugin: render %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
