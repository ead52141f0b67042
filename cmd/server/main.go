package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/lawvriksh/referral-engine/internal/config"
	"github.com/lawvriksh/referral-engine/internal/engine"
	"github.com/lawvriksh/referral-engine/internal/http"
	"github.com/lawvriksh/referral-engine/internal/logger"
	"github.com/lawvriksh/referral-engine/internal/rank"
	"github.com/lawvriksh/referral-engine/internal/repository"
	"github.com/lawvriksh/referral-engine/internal/repository/memory"
	"github.com/lawvriksh/referral-engine/internal/repository/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Environment)

	var repoImpl repository.ShareRepository
	if cfg.UseInMemoryStore {
		log.Warn("DATABASE_URL not set, using in-memory store. Data will reset on restart.")
		repoImpl = memory.New()
	} else {
		db, err := sql.Open("postgres", cfg.DBURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to postgres")
		}
		if err := db.Ping(); err != nil {
			log.WithError(err).Fatal("postgres ping failed")
		}
		repoImpl = postgres.New(db)
		defer db.Close()
		log.Info("connected to postgres")
	}

	tieBreak := rank.FirstToReach
	if cfg.TieBreak == config.TieBreakUserID {
		tieBreak = rank.ByUserID
	}

	eng := engine.New(repoImpl, cfg.Rewards, tieBreak, cfg.WindowRetention, log)
	if err := eng.Bootstrap(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to replay ledger")
	}

	router := http.Router(eng, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Infof("referral ranking engine listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
