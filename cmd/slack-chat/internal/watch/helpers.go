package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikesmullin/slack/cmd/slack-chat/internal"
	"github.com/mikesmullin/slack/pkg/bridge"
	"github.com/mikesmullin/slack/pkg/bus"
	"github.com/mikesmullin/slack/pkg/logger"
	"github.com/mikesmullin/slack/pkg/pull"
	"github.com/mikesmullin/slack/pkg/watch"
)

const statsInterval = time.Minute

func watchCmd(debug bool) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}
	cfg := app.Config
	if debug {
		logger.SetLevel("debug")
	}
	log := logger.Component("watch-server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := watch.NewEngine(watch.Options{
		Cache:       app.Cache,
		BufferPath:  cfg.BufferPath(),
		ExecTimeout: time.Duration(cfg.Exec.TimeoutSeconds) * time.Second,
	}, watch.Collaborators{
		ResolveChannel: app.Resolver.ResolveChannel,
		PostMessage:    app.Resolver.PostMessage,
		ResolveUser:    app.Resolver.ResolveUser,
		FetchContext:   app.Resolver.FetchContext,
	})

	loaded := engine.LoadRules(ctx, cfg.Watch)
	if loaded == 0 {
		fmt.Println("No watch rules configured; the engine will only mirror the stream.")
	} else {
		fmt.Printf("Loaded %d watch rule(s)\n", loaded)
	}
	engine.Start()
	defer engine.Stop()

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	stream := bridge.NewStream(cfg.Server.URL, eventBus)
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("stream terminated")
		}
	}()

	if cfg.Pull.Schedule != "" {
		puller := pull.New(app.Client, app.Store)
		scheduler, err := pull.NewScheduler(puller, cfg.Pull.Schedule, cfg.Pull.Channels, cfg.Pull.Limit)
		if err != nil {
			return err
		}
		go scheduler.Run(ctx)
	}

	go statsLoop(ctx, engine, log)

	fmt.Printf("Watch engine connected to %s\n", cfg.Server.URL)
	fmt.Println("Press Ctrl+C to stop")

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	for {
		ev, ok := eventBus.Consume(ctx)
		if !ok {
			break
		}
		engine.ProcessMessage(ctx, ev)
	}

	stats := engine.Stats()
	fmt.Printf("Watch engine stopped: %d processed, %d matched, %d executed\n",
		stats.Processed, stats.Matched, stats.CommandsExecuted)
	return nil
}

func statsLoop(ctx context.Context, engine *watch.Engine, log logger.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			log.Info().
				Uint64("processed", stats.Processed).
				Uint64("matched", stats.Matched).
				Uint64("duplicates", stats.DuplicatesSkipped).
				Uint64("executed", stats.CommandsExecuted).
				Uint64("replies", stats.RepliesPosted).
				Uint64("errors", stats.Errors).
				Msg("watch stats")
		}
	}
}
