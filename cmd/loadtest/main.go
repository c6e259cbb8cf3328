package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/chatclient"
	"github.com/SCORPIA2004/CampusConnect/internal/logging"
	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"golang.org/x/sync/errgroup"
)

const password = "password123"

type stats struct {
	sent     atomic.Int64
	rejected atomic.Int64
	received atomic.Int64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	pairs := flag.Int("pairs", 50, "number of user pairs; each pair chats with itself")
	msgCount := flag.Int("messages", 20, "messages per user")
	pause := flag.Duration("pause", 10*time.Millisecond, "pause between two messages of one user")
	domain := flag.String("domain", "ug.bilkent.edu.tr", "email domain for generated users")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logging.New(*logLevel, "text")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting load test", "users", *pairs*2, "messages_per_user", *msgCount)
	start := time.Now()
	var st stats

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(64)
	for i := range *pairs {
		g.Go(func() error {
			a := fmt.Sprintf("lt%d.a@%s", i, *domain)
			b := fmt.Sprintf("lt%d.b@%s", i, *domain)
			if err := runPair(gctx, log, *baseURL, a, b, *msgCount, *pause, &st); err != nil {
				log.Warn("pair failed", "pair", i, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	log.Info("load test complete",
		"elapsed", elapsed.Round(time.Millisecond),
		"sent", st.sent.Load(),
		"rejected", st.rejected.Load(),
		"received", st.received.Load(),
		"msgs_per_sec", float64(st.sent.Load())/elapsed.Seconds(),
	)
	return nil
}

func runPair(ctx context.Context, log *slog.Logger, baseURL, emailA, emailB string, msgCount int, pause time.Duration, st *stats) error {
	clientA, err := connect(ctx, log, baseURL, emailA)
	if err != nil {
		return err
	}
	defer clientA.Close()
	clientB, err := connect(ctx, log, baseURL, emailB)
	if err != nil {
		return err
	}
	defer clientB.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return spamChat(gctx, clientA, emailB, msgCount, pause, st) })
	g.Go(func() error { return spamChat(gctx, clientB, emailA, msgCount, pause, st) })
	if err := g.Wait(); err != nil {
		return err
	}

	// Give the last pushes a moment to land before counting them.
	time.Sleep(200 * time.Millisecond)
	for _, c := range []*chatclient.Client{clientA, clientB} {
		for _, e := range c.State().Entries {
			for _, m := range e.Messages {
				if !m.IsSender {
					st.received.Add(1)
				}
			}
		}
	}
	return nil
}

// connect registers (ignoring "already exists") and logs in.
func connect(ctx context.Context, log *slog.Logger, baseURL, email string) (*chatclient.Client, error) {
	_, err := chatclient.Register(ctx, baseURL, protocol.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Load",
		LastName:  "Test",
	})
	var httpErr *chatclient.HTTPError
	if err != nil && !(errors.As(err, &httpErr) && httpErr.Status == http.StatusConflict) {
		return nil, fmt.Errorf("register %s: %w", email, err)
	}

	login, err := chatclient.Login(ctx, baseURL, protocol.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}
	return chatclient.Dial(ctx, baseURL, login.AuthToken, log)
}

func spamChat(ctx context.Context, c *chatclient.Client, to string, msgCount int, pause time.Duration, st *stats) error {
	for i := range msgCount {
		_, err := c.Send(ctx, to, fmt.Sprintf("LoadTest Msg %d from %s", i, c.Self()), "")
		var ackErr *chatclient.AckError
		switch {
		case errors.As(err, &ackErr):
			st.rejected.Add(1)
		case err != nil:
			return fmt.Errorf("send from %s: %w", c.Self(), err)
		default:
			st.sent.Add(1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
	return nil
}
