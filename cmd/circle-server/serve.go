package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orincore/circle-core/internal/blinddate"
	"github.com/orincore/circle-core/internal/chatplane"
	"github.com/orincore/circle-core/internal/config"
	"github.com/orincore/circle-core/internal/coordinator"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/matchmaking"
	"github.com/orincore/circle-core/internal/notify"
	"github.com/orincore/circle-core/internal/promptmatch"
	"github.com/orincore/circle-core/internal/store"
	"github.com/orincore/circle-core/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the socket gateway and background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe wires every subsystem over one Store and one Coordinator, then
// runs the three worker.Runner loops and the HTTP/WebSocket gateway under a
// single errgroup so that any one of them exiting tears the rest down,
// grounded on cmd/nerd's rootCmd lifecycle but generalized from "one
// process, one loop" to "one process, N coordinated loops" the way
// golang.org/x/sync/errgroup is meant to be used.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging.DataDir, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
		logger.Warn("file logging unavailable: " + err.Error())
	}

	st, err := store.NewSQLiteStore(cfg.StoreURL)
	if err != nil {
		return err
	}
	defer st.Close()

	coord, err := buildCoordinator(cfg.CoordinatorURL)
	if err != nil {
		return err
	}

	notifier := notify.NewGate(st, logPusher{})
	gateway := chatplane.NewGateway(st, notifier, nil, []byte(cfg.JWTSecret))

	matchEngine := matchmaking.NewEngine(st, coord, gateway, matchmaking.Config{
		HeartbeatInterval: cfg.Matching.HeartbeatInterval,
		LeaseTTL:          cfg.Matching.LeaseTTL,
		TicketTTL:         cfg.Matching.TicketTTL,
		ProposalWindow:    cfg.Matching.ProposalWindow,
		ClaimTTL:          cfg.Matching.ClaimTTL,
	})
	promptMatcher := promptmatch.NewMatcher(st, gateway, promptmatch.Config{
		TickInterval:    cfg.Prompt.TickInterval,
		ResponseWindow:  cfg.Prompt.ResponseWindow,
		RequestLifetime: cfg.Prompt.RequestLifetime,
	})
	blindDate := blinddate.NewSession(st, gateway, logReminder{}, blinddate.Config{
		RevealThreshold:   cfg.BlindDate.RevealThreshold,
		ReminderInterval:  cfg.BlindDate.ReminderInterval,
		ReminderAfterIdle: cfg.BlindDate.ReminderAfterIdle,
	})
	gateway.SetBlindDate(blindDate)

	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsWrap(mux, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	runners := []*worker.Runner{
		{Coord: coord, Worker: matchEngine, Interval: cfg.Matching.HeartbeatInterval, LeaseTTL: cfg.Matching.LeaseTTL, HolderID: "matchmaking-1"},
		{Coord: coord, Worker: promptMatcher, Interval: cfg.Prompt.TickInterval, LeaseTTL: cfg.Prompt.TickInterval * 3, HolderID: "promptmatch-1"},
		{Coord: coord, Worker: blindDate, Interval: cfg.BlindDate.ReminderInterval, LeaseTTL: cfg.BlindDate.ReminderInterval * 2, HolderID: "blinddate-1"},
	}
	for _, r := range runners {
		r := r
		group.Go(func() error { return r.Run(gctx) })
	}

	group.Go(func() error {
		logger.Info("listening on " + httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildCoordinator(url string) (coordinator.Coordinator, error) {
	if url == "" {
		return coordinator.NewMemory(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return coordinator.NewRedis(redis.NewClient(opts)), nil
}

// corsWrap applies a single allowed origin, matching the single-tenant
// cors-origin key this deployment exposes; an empty origin disables CORS
// headers entirely.
func corsWrap(next http.Handler, origin string) http.Handler {
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
