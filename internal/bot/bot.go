// Package bot is the Telegram control surface. It long-polls for messages
// from the configured admin and maps slash commands onto tunnel operations.
// Commands are stateless: every argument comes on the command line.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/message"

	"grimm.is/portgate/internal/haproxy"
	"grimm.is/portgate/internal/history"
	"grimm.is/portgate/internal/i18n"
	"grimm.is/portgate/internal/logging"
	"grimm.is/portgate/internal/metrics"
	"grimm.is/portgate/internal/ratelimit"
	"grimm.is/portgate/internal/state"
	"grimm.is/portgate/internal/tunnels"
)

// maxMessage keeps replies under Telegram's 4096 character limit.
const maxMessage = 4000

// Operations is the subset of the tunnel manager the bot drives.
type Operations interface {
	List(ctx context.Context) (*state.TunnelSet, error)
	Add(ctx context.Context, in tunnels.Input) (*tunnels.Outcome, error)
	Edit(ctx context.Context, ref string, in tunnels.Input) (*tunnels.Outcome, error)
	Delete(ctx context.Context, ref string) (*tunnels.Outcome, error)
	SetHealthCheckPort(ctx context.Context, value string) (*tunnels.Outcome, error)
	Apply(ctx context.Context) (*tunnels.Outcome, error)
	Status(ctx context.Context) (*tunnels.Status, error)
}

// Transport sends and receives Telegram messages. *Client implements it.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot processes updates one at a time on the calling goroutine.
type Bot struct {
	transport   Transport
	ops         Operations
	adminID     int64
	pollTimeout time.Duration
	metrics     *metrics.Registry
	logger      *logging.Logger
	offset      int64

	commands   *ratelimit.Limiter
	rejections *ratelimit.Limiter
}

// Config configures a Bot.
type Config struct {
	AdminID     string
	PollTimeout time.Duration
	Metrics     *metrics.Registry
	Logger      *logging.Logger

	// CommandsPerMinute caps admin commands; zero means 20.
	CommandsPerMinute int
}

// New creates a bot. The admin id must be numeric.
func New(t Transport, ops Operations, cfg Config) (*Bot, error) {
	admin, err := strconv.ParseInt(strings.TrimSpace(cfg.AdminID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid admin id %q: %w", cfg.AdminID, err)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Get()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("bot")
	}
	if cfg.CommandsPerMinute <= 0 {
		cfg.CommandsPerMinute = 20
	}
	return &Bot{
		transport:   t,
		ops:         ops,
		adminID:     admin,
		pollTimeout: cfg.PollTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		commands:    ratelimit.NewLimiter(cfg.CommandsPerMinute, time.Minute),
		rejections:  ratelimit.NewLimiter(1, 10*time.Minute),
	}, nil
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", "admin_id", b.adminID, "poll_timeout", b.pollTimeout)
	backoff := time.Second
	for {
		if err := b.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.metrics.BotPollErrors.Inc()
			b.logger.Warn("poll failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < time.Minute {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		b.prune()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// prune drops rate-limit buckets whose window has passed, so senders that
// went quiet are not tracked forever.
func (b *Bot) prune() {
	b.commands.Prune()
	b.rejections.Prune()
}

// Poll fetches one batch of updates and handles each in order.
func (b *Bot) Poll(ctx context.Context) error {
	updates, err := b.transport.GetUpdates(ctx, b.offset, b.pollTimeout)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.UpdateID >= b.offset {
			b.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		b.handle(ctx, u.Message)
	}
	return nil
}

func (b *Bot) handle(ctx context.Context, msg *Message) {
	cmd, args := parseCommand(msg.Text)
	if cmd == "" {
		return
	}

	var lang string
	var sender int64
	if msg.From != nil {
		lang = msg.From.LanguageCode
		sender = msg.From.ID
	}
	p := i18n.ForLanguageCode(lang)

	authorized := sender == b.adminID
	b.metrics.BotCommandsTotal.WithLabelValues(cmd, strconv.FormatBool(authorized)).Inc()
	key := strconv.FormatInt(sender, 10)
	if !authorized {
		b.logger.Warn("rejected command from non-admin", "user_id", sender, "command", cmd)
		// one refusal per sender per window; the rest are dropped silently
		if b.rejections.Allow(key) {
			b.reply(ctx, msg.Chat.ID, p.Sprintf("Unauthorized."))
		}
		return
	}
	if !b.commands.Allow(key) {
		b.logger.Warn("command rate limit exceeded", "command", cmd)
		b.reply(ctx, msg.Chat.ID, p.Sprintf("Too many commands, try again in a minute."))
		return
	}

	b.logger.Info("command", "command", cmd, "args", strings.Join(args, " "))
	ctx = history.WithActor(ctx, "bot:"+key)
	b.reply(ctx, msg.Chat.ID, b.Execute(ctx, p, cmd, args))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	text = truncate(text, maxMessage)
	if err := b.transport.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Error("reply failed", "chat_id", chatID, "error", err)
	}
}

// truncate cuts text to at most n bytes on a rune boundary and marks the cut.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "\n…"
}

// Execute runs one command and returns the reply text.
func (b *Bot) Execute(ctx context.Context, p *message.Printer, cmd string, args []string) string {
	switch cmd {
	case "start", "help":
		return p.Sprintf(helpText)

	case "list":
		set, err := b.ops.List(ctx)
		if err != nil {
			return failure(p, err)
		}
		return FormatList(p, set)

	case "add":
		if len(args) < 2 || len(args) > 3 {
			return p.Sprintf("Usage: /add <addresses> <ports> [tcp|http]")
		}
		in := tunnels.Input{Addresses: args[0], Ports: args[1]}
		if len(args) == 3 {
			in.Mode = args[2]
		}
		out, err := b.ops.Add(ctx, in)
		if err != nil {
			return failure(p, err)
		}
		return p.Sprintf("Tunnel %d added (%s).", out.Index, out.Tunnel.ShortID())

	case "edit":
		if len(args) < 2 || len(args) > 4 {
			return p.Sprintf("Usage: /edit <tunnel> <addresses|-> [ports|-] [mode|-]")
		}
		in := tunnels.Input{Addresses: keep(args, 1), Ports: keep(args, 2), Mode: keep(args, 3)}
		out, err := b.ops.Edit(ctx, args[0], in)
		if err != nil {
			return failure(p, err)
		}
		return p.Sprintf("Tunnel %d updated.", out.Index)

	case "delete":
		if len(args) != 1 {
			return p.Sprintf("Usage: /delete <tunnel>")
		}
		out, err := b.ops.Delete(ctx, args[0])
		if err != nil {
			return failure(p, err)
		}
		return p.Sprintf("Tunnel %d deleted (%s).", out.Index, out.Tunnel.ShortID())

	case "healthcheck":
		if len(args) != 1 {
			return p.Sprintf("Usage: /healthcheck <port|none>")
		}
		if _, err := b.ops.SetHealthCheckPort(ctx, args[0]); err != nil {
			return failure(p, err)
		}
		return p.Sprintf("Health check port set to %s.", args[0])

	case "apply":
		out, err := b.ops.Apply(ctx)
		if err != nil {
			return failure(p, err)
		}
		return p.Sprintf("Configuration applied (%s).", out.Activation.Hash)

	case "status":
		st, err := b.ops.Status(ctx)
		if err != nil {
			return failure(p, err)
		}
		return FormatStatus(p, st)

	case "logs":
		n := 20
		if len(args) == 1 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		return FormatLogs(logging.GetRecentBuffer().Last(n))

	default:
		return p.Sprintf("Unknown command /%s. Try /help.", cmd)
	}
}

// parseCommand splits "/cmd@botname a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

// keep returns args[i], with "-" or a missing argument meaning unchanged.
func keep(args []string, i int) string {
	if i >= len(args) || args[i] == "-" {
		return ""
	}
	return args[i]
}

func failure(p *message.Printer, err error) string {
	var actErr *haproxy.ActivationError
	switch {
	case errors.As(err, &actErr) && actErr.Stage == haproxy.StageCheck:
		return p.Sprintf("Rejected by haproxy; live configuration unchanged. The change is saved; fix it and /apply.\n%s", err)
	case errors.Is(err, haproxy.ErrRestartFailed):
		return p.Sprintf("Configuration written but restart failed. Retry with /apply.\n%s", err)
	case errors.Is(err, state.ErrOutOfRange):
		return p.Sprintf("No such tunnel. Use /list.")
	}
	return p.Sprintf("Error: %s", err)
}

const helpText = `Commands:
/list - show tunnels
/add <addresses> <ports> [tcp|http]
/edit <tunnel> <addresses|-> [ports|-] [mode|-]
/delete <tunnel>
/healthcheck <port|none>
/apply - re-activate stored state
/status - service state
/logs [n] - recent log lines`
