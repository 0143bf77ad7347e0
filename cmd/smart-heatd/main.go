package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awaistahir/smart-heat/internal/config"
	"github.com/awaistahir/smart-heat/internal/heating"
	"github.com/awaistahir/smart-heat/internal/metrics"
	"github.com/awaistahir/smart-heat/internal/prices"
	"github.com/awaistahir/smart-heat/internal/publish"
	"github.com/awaistahir/smart-heat/internal/store"
	"github.com/awaistahir/smart-heat/internal/uiapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// runRetention bounds the schedule_runs history
const runRetention = 14 * 24 * time.Hour

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "smart-heatd",
		Short:        "SmartHeat scheduler daemon with HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper(), cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smartheat/config.yaml)")
	rootCmd.Flags().String("addr", "", "HTTP listen address (default :8080)")
	rootCmd.Flags().String("db", "", "database path")
	_ = viper.BindPFlag("http.addr", rootCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("db_path", rootCmd.Flags().Lookup("db"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	rec, err := metrics.NewRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	fallback, err := cfg.DefaultProfile()
	if err != nil {
		return err
	}

	opts := heating.Options{
		Rates:        prices.NewOctopusClient(cfg.Octopus.BaseURL, cfg.Octopus.APIKey, cfg.Octopus.ProductCode, cfg.Tariff()),
		Store:        st,
		Tariff:       cfg.Tariff(),
		Location:     cfg.Location(),
		Fallback:     fallback,
		Metrics:      rec,
		RunRetention: runRetention,
	}

	if cfg.MQTT.Broker != "" {
		pub := publish.New(cfg.MQTT)
		if err := pub.Connect(); err != nil {
			// paho keeps retrying in the background
			logrus.WithError(err).WithField("broker", cfg.MQTT.Broker).Warn("mqtt not connected yet")
		}
		defer pub.Close()
		opts.Publisher = pub
	} else {
		logrus.Info("no mqtt broker configured, schedules will not be published")
	}

	svc := heating.NewService(opts)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      uiapi.NewServer(svc, st, prometheus.DefaultGatherer).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	cycle := func() {
		if _, err := svc.Cycle(ctx, time.Now()); err != nil {
			logrus.WithError(err).Error("scheduling cycle discarded")
		}
	}

	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	schedule := fmt.Sprintf("CRON_TZ=%s %s", cfg.Timezone, cfg.RefreshCron)
	if _, err := c.AddFunc(schedule, cycle); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", cfg.RefreshCron, err)
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"addr":   cfg.HTTP.Addr,
			"db":     cfg.DBPath,
			"tariff": cfg.Tariff(),
		}).Info("smart-heatd listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		cycle()
		c.Start()
		<-ctx.Done()

		<-c.Stop().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logrus.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
