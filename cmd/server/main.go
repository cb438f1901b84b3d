package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freyr/crypto"
	"freyr/domain/book"
	"freyr/domain/guard"
	"freyr/domain/ledger"
	"freyr/domain/phase"
	"freyr/infra/custodian"
	"freyr/infra/journal"
	"freyr/infra/kafka"
	"freyr/infra/memory"
	"freyr/infra/outbox"
	"freyr/jobs/broadcaster"
	"freyr/service"
)

func main() {
	root := &cobra.Command{
		Use:   "freyr",
		Short: "Sealed-bid exchange engine",
		RunE:  run,
	}

	flags := root.Flags()
	flags.String("journal-dir", "./journal", "command journal directory")
	flags.String("outbox-dir", "./outbox", "event outbox directory")
	flags.StringSlice("kafka-brokers", []string{"localhost:9092"}, "kafka broker addresses")
	flags.String("events-topic", "freyr.events", "outbox events topic")
	flags.String("ticks-topic", "freyr.ticks", "live trade tick topic")
	flags.Duration("phase-unit", time.Minute, "length of one phase window")
	flags.String("log-level", "info", "zerolog level")

	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("FREYR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	// ---------------- Journal ----------------

	jrnl, err := journal.Open(journal.Config{
		Dir:         viper.GetString("journal-dir"),
		SegmentSize: 2 * 1024 * 1024,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("journal init failed")
	}
	defer jrnl.Close()

	// ---------------- Outbox ----------------

	ob, err := outbox.Open(viper.GetString("outbox-dir"))
	if err != nil {
		log.Fatal().Err(err).Msg("outbox init failed")
	}
	defer ob.Close()

	// ---------------- Domain ----------------

	sellPool := memory.NewPool(func() *book.SellOrder { return &book.SellOrder{} })
	buyPool := memory.NewPool(func() *book.BuyOrder { return &book.BuyOrder{} })

	ldgr := ledger.New()
	sells := book.NewSellBook(sellPool)
	buys := book.NewBuyQueue(buyPool)
	gate := phase.NewGate(time.Now(), viper.GetDuration("phase-unit"), nil)
	guards := guard.New()

	// ---------------- Kafka ----------------

	brokers := viper.GetStringSlice("kafka-brokers")
	ticks := kafka.NewTickProducer(brokers, viper.GetString("ticks-topic"))
	defer ticks.Close()

	// ---------------- Service ----------------

	svc := service.NewExchangeService(
		ldgr,
		sells,
		buys,
		gate,
		guards,
		jrnl,
		ob,
		custodian.NewVault(),
		crypto.Secp256k1Authority{},
		ticks,
		log,
	)

	// ---------------- Journal replay ----------------

	if err := service.ReplayFromJournal(viper.GetString("journal-dir"), svc); err != nil {
		log.Fatal().Err(err).Msg("journal replay failed")
	}

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bc, err := broadcaster.New(ob, brokers, viper.GetString("events-topic"), 250*time.Millisecond, log)
	if err != nil {
		log.Fatal().Err(err).Msg("broadcaster init failed")
	}
	defer bc.Close()
	go bc.Run(ctx)

	// The matching pass is still just a caller: once per tick, if the
	// gate says it is the Matching window, run a pass.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var lastRun phase.Phase = phase.DepositWithdrawal
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := gate.Current()
				if cur == phase.Matching && lastRun != phase.Matching {
					if _, err := svc.RunMatch(ctx); err != nil {
						log.Error().Err(err).Msg("matching pass failed")
					}
				}
				lastRun = cur
			}
		}
	}()

	log.Info().Msg("freyr engine running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	return nil
}
