package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/engineapi"
	"github.com/gavelworks/gavel/journal"
	"github.com/gavelworks/gavel/store/memory"
	"github.com/gavelworks/gavel/store/sqlite"
)

// Server accepts one request per connection, dispatches it to the engine,
// and writes the JSON response. Clients half-close after writing so the
// request body is read to EOF.
type Server struct {
	cfg        Config
	log        zerolog.Logger
	dispatcher *engineapi.Dispatcher
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.Listener == "vsock" {
		return vsock.Listen(s.cfg.VsockPort, nil)
	}
	return net.Listen("tcp", s.cfg.Addr)
}

func (s *Server) Start() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer listener.Close()

	s.log.Info().
		Str("listener", s.cfg.Listener).
		Str("addr", listener.Addr().String()).
		Int("max_workers", s.cfg.MaxWorkers).
		Msg("auction daemon listening")

	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		// Immediate rejection when the pool is full.
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.log.Warn().Msg("worker pool full, rejecting connection")
			_ = conn.Close()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	log := s.log.With().Str("conn", uuid.NewString()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic recovered in connection handler")
		}
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Error().Err(err).Msg("read request failed")
		return
	}

	resp := s.dispatcher.Handle(context.Background(), buf.Bytes())
	if !resp.Success && resp.Error != nil {
		log.Info().
			Str("type", resp.Type).
			Str("kind", resp.Error.Kind).
			Str("message", resp.Error.Message).
			Msg("request rejected")
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

// openStore builds the configured persistence backend.
func openStore(cfg Config) (core.Store, func() error, error) {
	if cfg.Store == "sqlite" {
		s, err := sqlite.Open(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return memory.New(), func() error { return nil }, nil
}

// bootstrapSettings applies the configured fee rate and minimum delta to
// a store that has no values yet. Values changed at runtime win over
// configuration on restart.
func bootstrapSettings(ctx context.Context, cfg Config, store core.Store) error {
	rate, err := store.FeeRate(ctx)
	if err != nil {
		return err
	}
	if rate == 0 && cfg.FeeRateBps > 0 {
		if err := store.SetFeeRate(ctx, cfg.FeeRateBps); err != nil {
			return err
		}
	}

	delta, err := store.MinDelta(ctx)
	if err != nil {
		return err
	}
	if delta.IsZero() && cfg.MinDelta != "" {
		value, err := decimal.NewFromString(cfg.MinDelta)
		if err != nil {
			return err
		}
		if err := store.SetMinDelta(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer closeStore()

	if err := bootstrapSettings(context.Background(), cfg, store); err != nil {
		log.Fatal().Err(err).Msg("bootstrap settings failed")
	}

	recorder := core.Recorder(core.NopRecorder{})
	if cfg.JournalPath != "" {
		w, err := journal.OpenWriter(cfg.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open journal failed")
		}
		w.SyncEach = cfg.JournalSync
		defer w.Close()
		recorder = w
		log.Info().Str("path", cfg.JournalPath).Str("stream", w.Stream()).Msg("audit journal enabled")
	}

	engine, err := core.NewEngine(core.Options{
		Store:     store,
		Assets:    newHostAssets(log),
		Payments:  hostPayments{log: log},
		Royalties: noRoyalty{},
		Auth:      newAllowListAuth(cfg.Admins),
		Operator:  core.Address(cfg.Operator),
		Recorder:  recorder,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build engine failed")
	}

	server := &Server{
		cfg:        cfg,
		log:        log,
		dispatcher: engineapi.NewDispatcher(engine),
	}
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
