package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/faultmesh/faultline/internal/metrics"
	"github.com/faultmesh/faultline/internal/models"
)

// cascadeFrom evaluates every catalogued kind other than the primary and,
// with that kind's own cascade probability, re-enters inject at depth+1. The
// recursive call runs the full catalog and cooldown checks, so a cascade
// attempt can be silently rejected. No lock is held across the re-entry.
func (o *Orchestrator) cascadeFrom(ctx context.Context, primary models.FaultKind, depth int) {
	if depth >= o.maxCascadeDepth {
		o.logger.Warn("cascade depth budget exhausted",
			slog.String("primary", string(primary)), slog.Int("depth", depth))
		return
	}

	for _, kind := range o.catalog.Kinds() {
		if kind == primary {
			continue
		}
		cfg, ok := o.catalog.Lookup(kind)
		if !ok {
			continue
		}
		if o.randFloat() >= cfg.CascadeProbability {
			continue
		}

		duration := time.Duration(math.Ceil(cfg.MaxDuration.Seconds()/2)) * time.Second
		accepted, err := o.inject(ctx, kind, duration, depth+1)
		if err != nil || !accepted {
			o.logger.Debug("cascade rejected",
				slog.String("primary", string(primary)),
				slog.String("kind", string(kind)),
				slog.Any("error", err),
			)
			continue
		}

		metrics.ObserveCascade(string(kind))
		o.logger.Warn("cascade effect triggered",
			slog.String("primary", string(primary)),
			slog.String("kind", string(kind)),
			slog.Int("depth", depth+1),
		)
	}
}
