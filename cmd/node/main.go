package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fairlend/fairlend/params"
	"github.com/fairlend/fairlend/pkg/api"
	"github.com/fairlend/fairlend/pkg/core/attest"
	"github.com/fairlend/fairlend/pkg/core/engine"
	"github.com/fairlend/fairlend/pkg/core/fairness"
	"github.com/fairlend/fairlend/pkg/core/ledger"
	"github.com/fairlend/fairlend/pkg/oracle"
	"github.com/fairlend/fairlend/pkg/settle"
	"github.com/fairlend/fairlend/pkg/storage"
	"github.com/fairlend/fairlend/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// ---- Attestation authority ----
	// No seed means the enclave boundary is unprovisioned: orders are
	// accepted but every match attempt fails with enclave-unavailable until
	// a key arrives.
	var attestor *attest.Attestor
	if cfg.Attest.PrivateKeySeedHex != "" {
		attestor, err = attest.FromSeedHex(cfg.Attest.PrivateKeySeedHex)
		if err != nil {
			logger.Fatal("attestor_key", zap.Error(err))
		}
		logger.Info("attestor_provisioned")
	} else {
		logger.Warn("attestor_unprovisioned", zap.String("hint", "set ATTEST_KEY_SEED"))
	}

	// ---- Durable archive ----
	var archive *storage.Store
	if cfg.Node.DataDir != "" {
		archive, err = storage.NewStore(cfg.Node.DataDir)
		if err != nil {
			logger.Fatal("archive_open", zap.Error(err))
		}
		defer archive.Close()
	}

	// ---- Price oracle ----
	var priceSource oracle.Source
	if cfg.Oracle.RedisAddr != "" {
		rs := oracle.NewRedisSource(cfg.Oracle.RedisAddr, cfg.Oracle.RedisPassword, cfg.Oracle.RedisDB)
		defer rs.Close()
		priceSource = rs
		logger.Info("oracle_redis", zap.String("addr", cfg.Oracle.RedisAddr))
	}

	// ---- Vesting registry ----
	vesting := settle.NewStaticVesting()
	for _, a := range strings.Split(os.Getenv("VESTING_ADDRESSES"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			vesting.Grant(common.HexToAddress(a))
		}
	}

	settlement := settle.NewLogSettlement(attestor.PublicKey(), logger)

	// Broadcast hook closes over the server, which needs the engine first.
	var srv *api.Server
	eng := engine.New(ledger.New(util.RealClock{}), attestor, engine.Config{
		Fairness:     fairness.FromParams(cfg.Fairness),
		SignTimeout:  cfg.Attest.SignTimeout,
		OracleMaxAge: cfg.Oracle.MaxQuoteAge,
		Logger:       logger,
		Vesting:      vesting,
		Settlement:   settlement,
		Archive:      archiveOrNil(archive),
		Oracle:       priceSource,
		OnMatch: func(res engine.MatchResult) {
			if srv != nil {
				srv.BroadcastMatch(res)
			}
		},
	})

	if archive != nil {
		positions, err := archive.ListPositions()
		if err != nil {
			logger.Fatal("archive_load", zap.Error(err))
		}
		eng.LoadPositions(positions)
		logger.Info("positions_rehydrated", zap.Int("count", len(positions)))
	}

	srv = api.NewServer(eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Node.ListenAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting_down")
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal("node_exit", zap.Error(err))
	}
}

// archiveOrNil avoids handing the engine a typed-nil interface.
func archiveOrNil(s *storage.Store) engine.Archive {
	if s == nil {
		return nil
	}
	return s
}
