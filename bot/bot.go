// Package bot is an echo bot: every incoming message is accepted, marked seen
// and sent back to the chat it came from.
package bot

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/vipnode/stdiorpc/deltachat"
	"github.com/vipnode/stdiorpc/internal/pretty"
	"github.com/vipnode/stdiorpc/jsonrpc2"
)

// ErrMissingCredentials is returned by Setup when the account needs to be
// configured but no address or password was given.
var ErrMissingCredentials = errors.New("account is not configured and no credentials were given")

func New(api *deltachat.API) *Bot {
	return &Bot{API: api}
}

// Bot answers incoming messages on a Delta Chat account.
type Bot struct {
	API *deltachat.API

	// Addr and Password are used to configure an account that is not
	// configured yet.
	Addr     string
	Password string

	// EventCallback is called for every event before it is handled.
	EventCallback func(*deltachat.Event)

	// ReplyCallback is called after a message was echoed back.
	ReplyCallback func(account deltachat.AccountID, msg *deltachat.Message)
}

// Serve sets up the account and answers messages until ctx is cancelled or
// the event stream ends. Events are consumed while the account is being
// configured, since configuring emits progress events.
func (b *Bot) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(ctx)
	})
	g.Go(func() error {
		_, err := b.Setup(ctx)
		return err
	})
	return g.Wait()
}

// Setup uses the first existing account, or adds one, and gets it online:
// an unconfigured account is configured with Addr and Password, a configured
// one has its IO started.
func (b *Bot) Setup(ctx context.Context) (deltachat.AccountID, error) {
	info, err := b.API.SystemInfo(ctx)
	if err != nil {
		return 0, err
	}
	logger.Printf("System info: %v", info)

	var account deltachat.AccountID
	ids, err := b.API.AllAccountIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		account = ids[0]
	} else if account, err = b.API.AddAccount(ctx); err != nil {
		return 0, err
	}

	accountInfo, err := b.API.Info(ctx, account)
	if err != nil {
		return 0, err
	}
	logger.Printf("Account %d: %v", account, accountInfo)

	configured, err := b.API.IsConfigured(ctx, account)
	if err != nil {
		return 0, err
	}
	if configured {
		return account, b.API.StartIO(ctx, account)
	}

	if b.Addr == "" || b.Password == "" {
		return 0, ErrMissingCredentials
	}
	logger.Printf("Account %d is not configured, configuring as %s", account, b.Addr)
	if err := b.API.SetConfig(ctx, account, "addr", b.Addr); err != nil {
		return 0, err
	}
	if err := b.API.SetConfig(ctx, account, "mail_pw", b.Password); err != nil {
		return 0, err
	}
	if err := b.API.Configure(ctx, account); err != nil {
		return 0, err
	}
	logger.Printf("Account %d configured", account)
	return account, nil
}

// Run handles events until ctx is cancelled or the event stream ends, both of
// which return nil.
func (b *Bot) Run(ctx context.Context) error {
	for {
		ev, err := b.API.NextEvent(ctx)
		if errors.Is(err, deltachat.ErrInvalidEvent) {
			logger.Printf("Skipping event: %s", err)
			continue
		}
		if err != nil {
			if ctx.Err() != nil || streamEnded(err) {
				logger.Printf("Event loop stopped: %s", err)
				return nil
			}
			return err
		}
		if b.EventCallback != nil {
			b.EventCallback(ev)
		}
		if err := b.handle(ctx, ev); err != nil {
			if ctx.Err() != nil || streamEnded(err) {
				logger.Printf("Event loop stopped while handling %s: %s", ev, err)
				return nil
			}
			return err
		}
	}
}

func streamEnded(err error) bool {
	return errors.Is(err, jsonrpc2.ErrConnectionClosed) || errors.Is(err, jsonrpc2.ErrCancelled)
}

func (b *Bot) handle(ctx context.Context, ev *deltachat.Event) error {
	switch ev.Type {
	case deltachat.EventInfo:
		logger.Printf("Info: %s", ev.Msg)
	case deltachat.EventIncomingMsg:
		err := b.reply(ctx, ev)
		var rpcErr *jsonrpc2.RPCError
		if errors.As(err, &rpcErr) {
			// The server refused, the session is still good.
			logger.Printf("Failed to answer %s: %s", ev, err)
			return nil
		}
		return err
	default:
		logger.Printf("Unknown event: %s", ev)
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, ev *deltachat.Event) error {
	account := ev.ContextID
	if err := b.API.AcceptChat(ctx, account, ev.ChatID); err != nil {
		return err
	}
	msg, err := b.API.GetMessage(ctx, account, ev.MsgID)
	if err != nil {
		return err
	}
	if err := b.API.MarkseenMsgs(ctx, account, []deltachat.MsgID{ev.MsgID}); err != nil {
		return err
	}
	logger.Printf("Echoing message %d in chat %d: %s", msg.ID, ev.ChatID, pretty.Abbrev(msg.Text, 40))
	if _, err := b.API.SendTextMessage(ctx, account, ev.ChatID, msg.Text); err != nil {
		return err
	}
	if b.ReplyCallback != nil {
		b.ReplyCallback(account, msg)
	}
	return nil
}
