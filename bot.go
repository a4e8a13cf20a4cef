package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/vipnode/stdiorpc/bot"
	"github.com/vipnode/stdiorpc/deltachat"
)

func runBot(options Options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := connect(ctx, options)
	if err != nil {
		return err
	}
	defer s.Close()

	b := bot.New(deltachat.New(s))
	b.Addr = options.Bot.Addr
	b.Password = options.Bot.Password
	b.EventCallback = func(ev *deltachat.Event) {
		logger.Debugf("Event: %s", ev)
	}
	b.ReplyCallback = func(account deltachat.AccountID, msg *deltachat.Message) {
		logger.Infof("Echoed message %d in chat %d of account %d", msg.ID, msg.ChatID, account)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stops the signal handler when the bot is done on its own.
		defer cancel()
		return b.Serve(ctx)
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	logger.Info("Bot is running, press Ctrl+C to stop")
	return g.Wait()
}
