package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/punchagan/childrens-park/command"
	"github.com/punchagan/childrens-park/internal/retryutil"
	"github.com/punchagan/childrens-park/plugin"
	"github.com/punchagan/childrens-park/roster"
	"github.com/punchagan/childrens-park/textutil"
)

func (b *Bot) registerBuiltins() error {
	p := b.opts.CommandPrefix
	// Everything except ,subscribe and ,help requires membership: invited
	// identities can join and read the help, nothing else.
	builtins := []command.Command{
		{Name: p + "subscribe", Description: "Join the channel. You need an invite first.", Handler: b.cmdSubscribe},
		{Name: p + "unsubscribe", Description: "Leave the channel.", Handler: b.membersOnly(b.cmdUnsubscribe)},
		{Name: p + "dnd", Description: "Toggle do-not-disturb. Parked members get no broadcasts.", Handler: b.membersOnly(b.cmdDND)},
		{Name: p + "alias", Description: "Change your nick: " + p + "alias <nick>", Handler: b.membersOnly(b.cmdAlias)},
		{Name: p + "topic", Description: "Show the topic, or set it: " + p + "topic <text>", Handler: b.membersOnly(b.cmdTopic)},
		{Name: p + "list", Description: "List the channel members.", Handler: b.membersOnly(b.cmdList)},
		{Name: p + "invite", Description: "Invite someone: " + p + "invite <address>", Handler: b.membersOnly(b.cmdInvite)},
		{Name: p + "whois", Description: "Look up the address behind a nick: " + p + "whois <nick>", Handler: b.membersOnly(b.cmdWhois)},
		{Name: p + "me", Description: "Describe an action: " + p + "me <does something>", Handler: b.membersOnly(b.cmdMe)},
		{Name: p + "uptime", Description: "Report how long I have been running.", Handler: b.membersOnly(b.cmdUptime)},
		{Name: p + "idea", Description: "Shared idea list: " + p + "idea [add <text>|remove <n>|list]", Handler: b.membersOnly(b.cmdIdea)},
		{Name: p + "urls", Description: "Show recently shared URLs.", Handler: b.membersOnly(b.cmdURLs)},
		{Name: p + "help", Description: "Show this help.", Handler: b.cmdHelp},
		{Name: p + "add", Description: "Register a command from a manifest or URL: " + p + "add <yaml|url>", Handler: b.membersOnly(b.cmdAdd)},
		{Name: p + "restart", Description: "Save everything and restart. Admins only.", Hidden: true, Handler: b.membersOnly(b.cmdRestart)},
	}
	for _, cmd := range builtins {
		if err := b.registry.RegisterProtected(cmd); err != nil {
			return fmt.Errorf("bot: register %s: %w", cmd.Name, err)
		}
	}
	return nil
}

// membersOnly guards a handler so only subscribed or parked members can run
// it. Invited identities can subscribe, not act on the channel.
func (b *Bot) membersOnly(h command.Handler) command.Handler {
	return func(ctx context.Context, sender, args string) (string, error) {
		p, ok := b.roster.Get(sender)
		if !ok || (p.State != roster.StateSubscribed && p.State != roster.StateParked) {
			return fmt.Sprintf("Only members can do that. Send %ssubscribe to join first.", b.opts.CommandPrefix), nil
		}
		return h(ctx, sender, args)
	}
}

func (b *Bot) cmdSubscribe(ctx context.Context, sender, args string) (string, error) {
	p, err := b.roster.Subscribe(sender)
	if err != nil {
		if existing, ok := b.roster.Get(sender); ok && existing.State != roster.StateInvited {
			return "You are already a member.", nil
		}
		return "", err
	}
	b.queue.Append(fmt.Sprintf("_%s has joined the channel_", p.Nick), p.Nick)
	b.persist()
	return fmt.Sprintf("Welcome to %s! You are %s. Use %shelp to see what I can do.",
		b.opts.ChannelName, p.Nick, b.opts.CommandPrefix), nil
}

func (b *Bot) cmdUnsubscribe(ctx context.Context, sender, args string) (string, error) {
	p, err := b.roster.Unsubscribe(sender)
	if err != nil {
		return "You are not a member.", nil
	}
	b.queue.Append(fmt.Sprintf("_%s has left the channel_", p.Nick), p.Nick)
	b.persist()
	return "Goodbye!", nil
}

func (b *Bot) cmdDND(ctx context.Context, sender, args string) (string, error) {
	p, parked, err := b.roster.ToggleDND(sender)
	if err != nil {
		return "You are not a member.", nil
	}
	b.persist()
	if parked {
		b.queue.Append(fmt.Sprintf("_%s entered NO PARKING ZONE_", p.Nick), p.Nick)
		return fmt.Sprintf("You are parked. Broadcasts will pass you by until you send %sdnd again.",
			b.opts.CommandPrefix), nil
	}
	b.queue.Append(fmt.Sprintf("_%s left the NO PARKING ZONE_", p.Nick), p.Nick)
	return "Welcome back!", nil
}

func (b *Bot) cmdAlias(ctx context.Context, sender, args string) (string, error) {
	old := b.nickFor(sender)
	p, err := b.roster.SetAlias(sender, args)
	switch {
	case errors.Is(err, roster.ErrNickTaken):
		return "That nick is already taken.", nil
	case errors.Is(err, roster.ErrNickTooShort), errors.Is(err, roster.ErrNickTooLong):
		return fmt.Sprintf("Nicks must be 1 to %d characters.", roster.MaxNickLen), nil
	case errors.Is(err, roster.ErrNotSubscribed):
		return "Only full members can change their nick.", nil
	case err != nil:
		return "", err
	}
	b.queue.Append(fmt.Sprintf("_%s is now known as %s_", old, p.Nick), p.Nick)
	b.persist()
	return fmt.Sprintf("You are now known as %s.", p.Nick), nil
}

func (b *Bot) cmdTopic(ctx context.Context, sender, args string) (string, error) {
	if args == "" {
		b.mu.Lock()
		topic := b.topic
		b.mu.Unlock()
		if topic == "" {
			return "No topic is set.", nil
		}
		return "Topic: " + topic, nil
	}

	b.mu.Lock()
	b.topic = args
	b.mu.Unlock()
	nick := b.nickFor(sender)
	b.queue.Append(fmt.Sprintf("_%s changed the topic to: %s_", nick, args), nick)
	b.persist()
	return "Topic updated.", nil
}

func (b *Bot) cmdList(ctx context.Context, sender, args string) (string, error) {
	subscribers := b.roster.Subscribers()
	parked := b.roster.Parked()
	invited := b.roster.Invited()
	if len(subscribers)+len(parked)+len(invited) == 0 {
		return "The channel is empty.", nil
	}

	var lines []string
	if len(subscribers) > 0 {
		lines = append(lines, "Members: "+strings.Join(nicks(subscribers), ", "))
	}
	if len(parked) > 0 {
		lines = append(lines, "Parked: "+strings.Join(nicks(parked), ", "))
	}
	if len(invited) > 0 {
		lines = append(lines, fmt.Sprintf("Invited: %d pending", len(invited)))
	}
	return strings.Join(lines, "\n"), nil
}

func nicks(participants []roster.Participant) []string {
	out := make([]string, len(participants))
	for i, p := range participants {
		out[i] = p.Nick
	}
	return out
}

func (b *Bot) cmdInvite(ctx context.Context, sender, args string) (string, error) {
	invitee := strings.ToLower(strings.TrimSpace(args))
	if !strings.Contains(invitee, "@") {
		return "That doesn't look like an address.", nil
	}
	if _, err := b.roster.Invite(invitee); err != nil {
		return fmt.Sprintf("%s is already invited or a member.", invitee), nil
	}
	b.persist()

	inviter := b.nickFor(sender)
	note := fmt.Sprintf("You have been invited to %s by %s. Send %ssubscribe to join.",
		b.opts.ChannelName, inviter, b.opts.CommandPrefix)
	b.spawn("invite", func(ctx context.Context) {
		friends, err := b.network.Friends(ctx)
		if err != nil {
			b.logger.Warn("friend list fetch failed", "error", err)
		} else if !slices.Contains(friends, invitee) {
			if err := b.network.Invite(ctx, invitee); err != nil {
				b.logger.Warn("network invite failed", "invitee", invitee, "error", err)
			}
		}
		if err := b.network.Send(ctx, invitee, note); err != nil {
			b.logger.Warn("invite note failed, retrying", "invitee", invitee, "error", err)
			retryutil.AsyncRetry(b.logger, "invite_note", 0, 0, func(ctx context.Context) error {
				return b.network.Send(ctx, invitee, note)
			})
		}
	})
	return fmt.Sprintf("Invited %s.", invitee), nil
}

func (b *Bot) cmdWhois(ctx context.Context, sender, args string) (string, error) {
	identity, ok := b.roster.IdentityByNick(args)
	if !ok {
		return "Nobody goes by that nick.", nil
	}
	return fmt.Sprintf("%s is %s.", roster.NormalizeNick(args), identity), nil
}

func (b *Bot) cmdMe(ctx context.Context, sender, args string) (string, error) {
	if args == "" {
		return fmt.Sprintf("Usage: %sme <does something>", b.opts.CommandPrefix), nil
	}
	nick := b.nickFor(sender)
	b.queue.Append(fmt.Sprintf("_%s %s_", nick, args), nick)
	return "", nil
}

func (b *Bot) cmdUptime(ctx context.Context, sender, args string) (string, error) {
	return fmt.Sprintf("I have been up for %s.", time.Since(b.started).Round(time.Second)), nil
}

func (b *Bot) cmdIdea(ctx context.Context, sender, args string) (string, error) {
	sub, rest := splitCommand(args)
	switch sub {
	case "", "list":
		b.mu.Lock()
		ideas := append([]string(nil), b.ideas...)
		b.mu.Unlock()
		if len(ideas) == 0 {
			return fmt.Sprintf("No ideas yet. Add one with %sidea add <text>.", b.opts.CommandPrefix), nil
		}
		var sb strings.Builder
		sb.WriteString("Ideas:")
		for i, idea := range ideas {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, idea)
		}
		return sb.String(), nil

	case "add":
		if rest == "" {
			return fmt.Sprintf("Usage: %sidea add <text>", b.opts.CommandPrefix), nil
		}
		b.mu.Lock()
		b.ideas = append(b.ideas, rest)
		n := len(b.ideas)
		b.mu.Unlock()
		b.persist()
		return fmt.Sprintf("Idea #%d noted.", n), nil

	case "remove":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Sprintf("Usage: %sidea remove <number>", b.opts.CommandPrefix), nil
		}
		b.mu.Lock()
		if n < 1 || n > len(b.ideas) {
			b.mu.Unlock()
			return "No such idea.", nil
		}
		b.ideas = append(b.ideas[:n-1], b.ideas[n:]...)
		b.mu.Unlock()
		b.persist()
		return fmt.Sprintf("Removed idea #%d.", n), nil

	default:
		return fmt.Sprintf("Usage: %sidea [add <text>|remove <n>|list]", b.opts.CommandPrefix), nil
	}
}

func (b *Bot) cmdURLs(ctx context.Context, sender, args string) (string, error) {
	if b.history == nil {
		return "URL history is not available.", nil
	}
	entries, err := b.history.RecentURLs(10)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No URLs shared yet.", nil
	}
	var sb strings.Builder
	sb.WriteString("Recently shared:")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s (%s)", e.URL, e.Nick)
	}
	return sb.String(), nil
}

func (b *Bot) cmdHelp(ctx context.Context, sender, args string) (string, error) {
	return b.registry.Help() + "\nAnything else you send is broadcast to the channel.", nil
}

func (b *Bot) cmdAdd(ctx context.Context, sender, args string) (string, error) {
	if args == "" {
		return fmt.Sprintf("Usage: %sadd <manifest yaml or url>", b.opts.CommandPrefix), nil
	}

	if textutil.IsURL(args) {
		url := args
		b.spawn("fetch_plugin", func(ctx context.Context) {
			m, err := b.fetcher.Fetch(ctx, url)
			if err != nil {
				b.logger.Warn("plugin fetch failed", "url", url, "error", err)
				b.reply(ctx, sender, fmt.Sprintf("Couldn't fetch a command from %s: %v", url, err))
				return
			}
			if reply := b.installManifest(m); reply != "" {
				b.reply(ctx, sender, reply)
			}
		})
		return "Fetching the command definition, hang on.", nil
	}

	m, err := plugin.Parse([]byte(args))
	if err != nil {
		return fmt.Sprintf("That manifest was rejected: %v", err), nil
	}
	return b.installManifest(m), nil
}

// installManifest registers a parsed manifest and persists its source so it
// survives a restart.
func (b *Bot) installManifest(m plugin.Manifest) string {
	if err := b.registerManifest(m); err != nil {
		if errors.Is(err, command.ErrNameConflict) {
			return fmt.Sprintf("%s is protected and cannot be replaced.", m.Name)
		}
		return fmt.Sprintf("Couldn't register %s: %v", m.Name, err)
	}
	src, err := yaml.Marshal(m)
	if err != nil {
		b.logger.Error("manifest marshal failed", "command", m.Name, "error", err)
		return fmt.Sprintf("Registered %s, but it won't survive a restart.", m.Name)
	}
	b.mu.Lock()
	b.plugins[m.Name] = string(src)
	b.mu.Unlock()
	b.persist()
	return fmt.Sprintf("Registered %s.", m.Name)
}

func (b *Bot) reply(ctx context.Context, sender, text string) {
	if err := b.network.Send(ctx, sender, text); err != nil {
		b.logger.Warn("reply send failed", "to", sender, "error", err)
	}
}

func (b *Bot) cmdRestart(ctx context.Context, sender, args string) (string, error) {
	if !b.isAdmin(sender) {
		return "Only admins can restart me.", nil
	}
	b.queue.Append("_Be right back!_", "")
	b.requestRestart()
	return "Restarting.", nil
}
