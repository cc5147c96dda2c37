package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/censusconnect/authserver/internal/logging"
	"github.com/censusconnect/authserver/internal/server/config"
	"github.com/censusconnect/authserver/internal/server/models"
	"github.com/censusconnect/authserver/internal/server/repositories/repomanager"
)

// attemptRetention keeps throttle attempts long enough to cover the widest
// seeded rule window (24h for activation).
const attemptRetention = 24 * time.Hour

// Pruner periodically deletes expired sessions, stale security tokens, and
// old throttle attempts. Expiry checks elsewhere are lazy; the pruner only
// reclaims space.
type Pruner struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	log           logging.Logger
	interval      time.Duration
	activationTTL time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

func NewPruner(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *Pruner {
	return &Pruner{
		db:            db,
		repomanager:   m,
		log:           log,
		interval:      cfg.PruneInterval,
		activationTTL: cfg.ActivationTokenTTL,
		resetTTL:      cfg.ResetTokenTTL,
		now:           time.Now,
	}
}

// Run sweeps on a ticker until the context is cancelled. Errors are logged
// and the loop keeps going; a failed sweep just waits for the next tick.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	now := p.now()

	if n, err := p.repomanager.Sessions(p.db).DeleteExpired(ctx, now); err != nil {
		p.log.Error(ctx, "pruning sessions failed", "error", err)
	} else if n > 0 {
		p.log.Info(ctx, "pruned expired sessions", "count", n)
	}

	tokens := p.repomanager.Tokens(p.db)
	if n, err := tokens.DeleteExpired(ctx, models.TokenPurposeActivation, now.Add(-p.activationTTL)); err != nil {
		p.log.Error(ctx, "pruning activation tokens failed", "error", err)
	} else if n > 0 {
		p.log.Info(ctx, "pruned activation tokens", "count", n)
	}
	if n, err := tokens.DeleteExpired(ctx, models.TokenPurposeReset, now.Add(-p.resetTTL)); err != nil {
		p.log.Error(ctx, "pruning reset tokens failed", "error", err)
	} else if n > 0 {
		p.log.Info(ctx, "pruned reset tokens", "count", n)
	}

	if n, err := p.repomanager.Throttle(p.db).DeleteOldAttempts(ctx, now.Add(-attemptRetention)); err != nil {
		p.log.Error(ctx, "pruning throttle attempts failed", "error", err)
	} else if n > 0 {
		p.log.Info(ctx, "pruned throttle attempts", "count", n)
	}
}
