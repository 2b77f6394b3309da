package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"adversim/internal/api"
	"adversim/internal/sim"
	"adversim/internal/store"
)

func main() {
	port := flag.String("port", "8090", "server port")
	dbPath := flag.String("db", "adversim.db", "SQLite database path (empty disables persistence)")
	configPath := flag.String("config", "", "path to a YAML config file")
	headless := flag.Bool("headless", false, "run one simulation to completion and exit")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	var st *store.Store
	if *dbPath != "" {
		st, err = store.New(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *dbPath).Msg("open store")
		}
		defer st.Close()
	}

	if *headless {
		runHeadless(cfg, st)
		return
	}

	server, err := api.NewServer(cfg, st)
	if err != nil {
		log.Fatal().Err(err).Msg("build server")
	}

	httpServer := &http.Server{
		Addr:    ":" + *port,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("adversim listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// runHeadless executes a full run without serving, logs a summary, and
// persists the result when a store is configured.
func runHeadless(cfg sim.Config, st *store.Store) {
	s, err := sim.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build simulation")
	}

	var runID string
	if st != nil {
		if runID, err = st.CreateRun(cfg); err != nil {
			log.Error().Err(err).Msg("record run start")
			runID = ""
		}
	}

	started := time.Now()
	s.Run(false)
	final := s.GetCurrentState().Metrics

	log.Info().
		Int("ticks", s.Tick()).
		Dur("elapsed", time.Since(started)).
		Float64("true_value", final.TrueValue).
		Float64("mm_pnl", final.MMPnl).
		Int64("mm_inventory", final.MMInventory).
		Float64("mm_spread", final.MMSpread).
		Int64("trades", final.TradeCount).
		Int64("adverse", final.AdverseCount).
		Msg("run complete")

	if st != nil && runID != "" {
		if err := st.FinishRun(runID, s.Tick()); err != nil {
			log.Error().Err(err).Msg("finish run")
		}
		if err := st.SaveTrades(runID, s.GetTrades()); err != nil {
			log.Error().Err(err).Msg("persist trades")
		}
		if err := st.SaveMetrics(runID, s.MetricsHistory()); err != nil {
			log.Error().Err(err).Msg("persist metrics")
		}
		log.Info().Str("run_id", runID).Msg("run persisted")
	}
}

// loadConfig layers defaults, an optional YAML file, and ADVERSIM_* env vars
// into the simulation configuration.
func loadConfig(path string) (sim.Config, error) {
	v := viper.New()

	defaults := sim.DefaultConfig()
	v.SetDefault("seed", defaults.Seed)
	v.SetDefault("initial_price", defaults.InitialPrice)
	v.SetDefault("volatility", defaults.Volatility)
	v.SetDefault("jump_prob", defaults.JumpProb)
	v.SetDefault("jump_size", defaults.JumpSize)
	v.SetDefault("base_spread", defaults.BaseSpread)
	v.SetDefault("maker_size", defaults.MakerSize)
	v.SetDefault("adapt_rate", defaults.AdaptRate)
	v.SetDefault("inventory_skew", defaults.InventorySkew)
	v.SetDefault("informed_ratio", defaults.InformedRatio)
	v.SetDefault("arrival_rate", defaults.ArrivalRate)
	v.SetDefault("edge_threshold", defaults.EdgeThreshold)
	v.SetDefault("tick_ms", defaults.TickMs)
	v.SetDefault("ticks", defaults.Ticks)

	v.SetEnvPrefix("ADVERSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return sim.Config{}, err
		}
	}

	var cfg sim.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return sim.Config{}, err
	}
	return cfg, cfg.Validate()
}
