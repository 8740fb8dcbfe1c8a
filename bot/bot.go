// Package bot wires the roster, the command registry, the outbound queue and
// the flush loop into one broadcast channel.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/punchagan/childrens-park/command"
	"github.com/punchagan/childrens-park/history"
	"github.com/punchagan/childrens-park/internal/worker"
	"github.com/punchagan/childrens-park/outbox"
	"github.com/punchagan/childrens-park/plugin"
	"github.com/punchagan/childrens-park/roster"
	"github.com/punchagan/childrens-park/state"
	"github.com/punchagan/childrens-park/textutil"
	"github.com/punchagan/childrens-park/transport"
)

const (
	DefaultFlushInterval = 5 * time.Minute
	DefaultCommandPrefix = ","

	failureReply     = "Something went wrong running that command. It has been logged."
	unknownCmdReply  = "I don't know that command. Try %shelp."
	shutdownGrace    = 10 * time.Second
	workerPoolSize   = 4
	workerQueueSize  = 32
	correctionWindow = 50
)

type Options struct {
	ChannelName   string
	CommandPrefix string
	FlushInterval time.Duration
	ChunkLimit    int
	Admins        []string
	PluginDir     string
}

// Network is the slice of the transport the bot core needs.
type Network interface {
	transport.Sender
	Friends(ctx context.Context) ([]string, error)
	Invite(ctx context.Context, identity string) error
}

type Deps struct {
	Logger  *slog.Logger
	Store   *state.FileStore
	History *history.Store // optional
	Network Network
	Fetcher *plugin.Fetcher // optional
}

type job struct {
	name string
	fn   func(context.Context)
}

type Bot struct {
	opts     Options
	logger   *slog.Logger
	roster   *roster.Roster
	queue    *outbox.Queue
	registry *command.Registry
	store    *state.FileStore
	history  *history.Store
	network  Network
	fetcher  *plugin.Fetcher

	mu      sync.Mutex
	topic   string
	ideas   []string
	plugins map[string]string
	extra   map[string]json.RawMessage

	admins  map[string]bool
	started time.Time

	jobs     chan job
	sem      chan struct{}
	restartc chan struct{}
	restart  sync.Once

	runMu  sync.Mutex
	runCtx context.Context
}

// New hydrates a bot from the persisted state document and registers the
// built-in commands plus any plugin manifests from the plugin directory and
// the state document.
func New(opts Options, deps Deps) (*Bot, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("bot: a state store is required")
	}
	if deps.Network == nil {
		return nil, fmt.Errorf("bot: a network is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = DefaultCommandPrefix
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = textutil.DefaultChunkLimit
	}
	if opts.ChannelName == "" {
		opts.ChannelName = "the park"
	}
	if deps.Fetcher == nil {
		deps.Fetcher = plugin.NewFetcher(nil, 0)
	}

	doc, err := deps.Store.Load()
	if err != nil {
		// Corrupt state is logged and treated as empty, never fatal.
		deps.Logger.Warn("state load failed, starting empty", "error", err)
		doc = state.NewDocument()
	}

	b := &Bot{
		opts:     opts,
		logger:   deps.Logger,
		roster:   roster.New(),
		queue:    outbox.New(),
		registry: command.NewRegistry(),
		store:    deps.Store,
		history:  deps.History,
		network:  deps.Network,
		fetcher:  deps.Fetcher,
		topic:    doc.Topic,
		ideas:    doc.Ideas,
		plugins:  doc.Plugins,
		extra:    doc.Extra,
		admins:   make(map[string]bool, len(opts.Admins)),
		started:  time.Now(),
		jobs:     make(chan job, workerQueueSize),
		sem:      make(chan struct{}, workerPoolSize),
		restartc: make(chan struct{}),
	}
	if b.plugins == nil {
		b.plugins = make(map[string]string)
	}
	for _, admin := range opts.Admins {
		b.admins[strings.ToLower(strings.TrimSpace(admin))] = true
	}

	b.roster.Restore(doc.Users, doc.Invited, doc.Parked)
	if err := b.registerBuiltins(); err != nil {
		return nil, err
	}
	b.loadPluginDir()
	b.loadPersistedPlugins()
	return b, nil
}

func (b *Bot) loadPluginDir() {
	if b.opts.PluginDir == "" {
		return
	}
	manifests, err := plugin.LoadDir(b.opts.PluginDir)
	if err != nil {
		b.logger.Warn("plugin dir load failed", "dir", b.opts.PluginDir, "error", err)
		return
	}
	for _, m := range manifests {
		if err := b.registerManifest(m); err != nil {
			b.logger.Warn("plugin register failed", "command", m.Name, "error", err)
		}
	}
}

func (b *Bot) loadPersistedPlugins() {
	b.mu.Lock()
	saved := make(map[string]string, len(b.plugins))
	for name, src := range b.plugins {
		saved[name] = src
	}
	b.mu.Unlock()

	for name, src := range saved {
		m, err := plugin.Parse([]byte(src))
		if err != nil {
			b.logger.Warn("saved plugin no longer parses, dropping", "command", name, "error", err)
			b.mu.Lock()
			delete(b.plugins, name)
			b.mu.Unlock()
			continue
		}
		if err := b.registerManifest(m); err != nil {
			b.logger.Warn("saved plugin register failed", "command", name, "error", err)
		}
	}
}

func (b *Bot) registerManifest(m plugin.Manifest) error {
	cmd, err := plugin.Compile(m, plugin.Env{
		Channel:   b.opts.ChannelName,
		Nick:      b.nickFor,
		Broadcast: func(text, senderNick string) { b.queue.Append(text, senderNick) },
	})
	if err != nil {
		return err
	}
	return b.registry.Register(cmd)
}

// HandleInbound dispatches one transport message and delivers any direct
// reply back to the sender.
func (b *Bot) HandleInbound(ctx context.Context, msg transport.Message) {
	reply := b.Dispatch(ctx, msg.Sender, msg.Text)
	if reply == "" {
		return
	}
	if err := b.network.Send(ctx, msg.Sender, reply); err != nil {
		b.logger.Warn("reply send failed", "to", msg.Sender, "error", err)
	}
}

// Dispatch classifies one inbound line and returns the direct reply, if any.
// Messages from identities the roster does not track are dropped without a
// trace; that is an anti-spam boundary, not an error.
func (b *Bot) Dispatch(ctx context.Context, sender, text string) string {
	p, known := b.roster.Get(sender)
	if !known {
		b.logger.Debug("dropping message from stranger", "sender", sender)
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	token, rest := splitCommand(text)
	if cmd, ok := b.registry.Lookup(token); ok {
		reply, err := b.invoke(ctx, cmd, sender, rest)
		if err != nil {
			b.logger.Error("command failed", "command", token, "sender", sender, "error", err)
			return failureReply
		}
		return reply
	}
	if strings.HasPrefix(token, b.opts.CommandPrefix) {
		return fmt.Sprintf(unknownCmdReply, b.opts.CommandPrefix)
	}
	if p.State == roster.StateSubscribed {
		b.broadcastChat(p, text)
		return ""
	}
	return fmt.Sprintf(unknownCmdReply, b.opts.CommandPrefix)
}

// splitCommand splits on the first space, falling back to the first newline.
func splitCommand(text string) (token, rest string) {
	idx := strings.IndexByte(text, ' ')
	if idx < 0 {
		idx = strings.IndexByte(text, '\n')
	}
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx+1:])
}

func (b *Bot) invoke(ctx context.Context, cmd command.Command, sender, args string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return cmd.Handler(ctx, sender, args)
}

// broadcastChat queues a freeform line, handling s/old/new corrections and
// recording the line and its URLs to history.
func (b *Bot) broadcastChat(p roster.Participant, text string) {
	if corrected, ok := b.applyCorrection(p, text); ok {
		b.queue.Append(corrected, p.Nick)
		return
	}

	tagged := fmt.Sprintf("[%s]: %s", p.Nick, text)
	b.queue.Append(tagged, p.Nick)
	if b.history != nil {
		if err := b.history.Record(p.Identity, p.Nick, text); err != nil {
			b.logger.Warn("history record failed", "error", err)
		}
	}
}

// applyCorrection turns "s/old/new" (or "s/old/" for a deletion) from a
// member into a re-broadcast of their latest matching line. It reports false
// when the message is not a correction or nothing matches, in which case the
// line is relayed verbatim.
func (b *Bot) applyCorrection(p roster.Participant, text string) (string, bool) {
	if b.history == nil || !strings.HasPrefix(text, "s/") || strings.Count(text, "/") < 2 {
		return "", false
	}
	old, repl, _ := strings.Cut(strings.TrimSuffix(text[len("s/"):], "/"), "/")
	if old == "" {
		return "", false
	}

	lines, err := b.history.Recent(correctionWindow)
	if err != nil {
		b.logger.Warn("history lookup failed", "error", err)
		return "", false
	}
	for _, line := range lines {
		if line.Nick != p.Nick || !strings.Contains(line.Text, old) {
			continue
		}
		corrected := strings.Replace(line.Text, old, repl, 1)
		return fmt.Sprintf("_%s meant: %s_", p.Nick, corrected), true
	}
	return "", false
}

// Flush drains the queue and fans every message out to all subscribed
// members, skipping the originator, chunking each payload and highlighting
// the recipient's nick. A send failure for one recipient is logged and the
// cycle moves on; when a message reaches nobody at all (the transport is
// down) it and the rest of the drain are put back for the next cycle.
func (b *Bot) Flush(ctx context.Context) {
	messages := b.queue.Drain()
	if len(messages) == 0 {
		return
	}
	subscribers := b.roster.Subscribers()

	for i, msg := range messages {
		targets := 0
		delivered := 0
		for _, p := range subscribers {
			if msg.SenderNick != "" && p.Nick == msg.SenderNick {
				continue
			}
			targets++
			text := textutil.HighlightWord(msg.Text, p.Nick)
			sent := true
			for _, chunk := range textutil.Chunk(text, b.opts.ChunkLimit) {
				if err := b.network.Send(ctx, p.Identity, chunk); err != nil {
					b.logger.Warn("broadcast send failed", "to", p.Identity, "error", err)
					sent = false
					break
				}
			}
			if sent {
				delivered++
			}
		}
		if targets > 0 && delivered == 0 {
			b.logger.Warn("broadcast reached nobody, requeueing", "pending", len(messages)-i)
			b.queue.Requeue(messages[i:])
			return
		}
	}
}

// Run announces the channel, starts the worker pool and flushes on a fixed
// cadence until the context is canceled or a restart is requested. Either
// way it performs one final flush and save before returning.
func (b *Bot) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.runMu.Lock()
	b.runCtx = runCtx
	b.runMu.Unlock()
	defer func() {
		b.runMu.Lock()
		b.runCtx = nil
		b.runMu.Unlock()
	}()

	worker.Start(worker.StartOptions[job]{
		Ctx:  runCtx,
		Sem:  b.sem,
		Jobs: b.jobs,
		Handle: func(ctx context.Context, j job) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("background job panicked", "job", j.name, "panic", r)
				}
			}()
			j.fn(ctx)
		},
	})

	b.queue.Append("_We are up and running!_", "")
	b.logger.Info("bot running",
		"channel", b.opts.ChannelName,
		"flush_interval", b.opts.FlushInterval.String(),
		"members", len(b.roster.Subscribers()),
	)

	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()
		case <-b.restartc:
			b.shutdown()
			return ErrRestartRequested
		case <-ticker.C:
			b.Flush(ctx)
			b.persist()
		}
	}
}

func (b *Bot) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	b.Flush(ctx)
	b.persist()
	b.logger.Info("bot stopped")
}

func (b *Bot) requestRestart() {
	b.restart.Do(func() { close(b.restartc) })
}

// persist writes the current state document. Mutating commands call this
// before replying; the flush tick re-saves as a safety net.
func (b *Bot) persist() {
	users, invited, parked := b.roster.Snapshot()

	b.mu.Lock()
	doc := state.Document{
		Users:   users,
		Invited: invited,
		Parked:  parked,
		Topic:   b.topic,
		Ideas:   append([]string(nil), b.ideas...),
		Plugins: make(map[string]string, len(b.plugins)),
		Extra:   b.extra,
	}
	for name, src := range b.plugins {
		doc.Plugins[name] = src
	}
	b.mu.Unlock()

	if err := b.store.Save(doc); err != nil {
		b.logger.Error("state save failed", "error", err)
	}
}

// Bootstrap force-subscribes an identity, skipping the invite handshake.
// Used by local front ends like the console.
func (b *Bot) Bootstrap(identity string) error {
	if p, ok := b.roster.Get(identity); ok && p.State != roster.StateInvited {
		return nil
	}
	if _, err := b.roster.Invite(identity); err != nil && !errors.Is(err, roster.ErrAlreadyKnown) {
		return err
	}
	if _, err := b.roster.Subscribe(identity); err != nil {
		return err
	}
	b.persist()
	return nil
}

// Queue exposes the outbound queue for plugin-style collaborators.
func (b *Bot) Queue() *outbox.Queue {
	return b.queue
}

func (b *Bot) nickFor(identity string) string {
	if p, ok := b.roster.Get(identity); ok && p.Nick != "" {
		return p.Nick
	}
	return roster.DefaultNick(identity)
}

func (b *Bot) isAdmin(identity string) bool {
	return b.admins[strings.ToLower(strings.TrimSpace(identity))]
}

// spawn hands fn to the bounded pool. Outside of Run (no workers yet) the
// job gets its own goroutine so the feature still works in local setups.
func (b *Bot) spawn(name string, fn func(context.Context)) {
	b.runMu.Lock()
	workersCtx := b.runCtx
	b.runMu.Unlock()
	if workersCtx == nil {
		go fn(context.Background())
		return
	}
	if err := worker.Enqueue(nil, workersCtx, b.jobs, job{name: name, fn: fn}); err != nil {
		b.logger.Warn("background job dropped", "job", name, "error", err)
	}
}
