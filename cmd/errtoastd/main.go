package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"errtoast/internal/app"
	"errtoast/pkg/systemd"
)

func main() {
	var (
		cfgPath   string
		source    string
		keepAlive bool
	)
	flag.StringVar(&cfgPath, "config", "./errtoast.yaml", "path to config (yaml or json)")
	flag.StringVar(&source, "source", "-", "JSON-lines feed of captured errors; - is stdin, empty disables")
	flag.BoolVar(&keepAlive, "keep-alive", false, "keep running after the feed ends")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []app.Option{}
	var feed io.ReadCloser
	switch source {
	case "":
	case "-":
		opts = append(opts, app.WithFeed(os.Stdin))
	default:
		f, err := os.Open(source)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		feed = f
		opts = append(opts, app.WithFeed(f))
	}

	a, err := app.NewApp(cfgPath, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = systemd.Ready("capturing")
	go func() { _ = systemd.Watchdog(ctx, func() bool { return a.Err() == nil }) }()

	feedDone := a.FeedDone()
	if keepAlive {
		feedDone = nil
	}
	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopReasonForSignal(sig)
	case <-a.Done():
		reason = app.StopFatalError
	case <-feedDone:
		reason = app.StopFeedEOF
	}
	cancel()

	_, _ = systemd.Stopping(string(reason))
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	err = a.Stop(stopCtx, reason)
	if feed != nil {
		_ = feed.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
