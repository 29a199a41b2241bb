package transfer

import (
	"context"
	"time"

	"guardget/database/repository"
	"guardget/models"

	"go.uber.org/zap"
)

// ExpireStale closes every open request whose absolute deadline has passed.
// Each request is expired in its own transaction; one that completed or was
// cancelled concurrently is skipped.
func (c *DefaultCoordinator) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	limit := c.Policy.SweepBatchSize
	if limit <= 0 {
		limit = 100
	}

	expired := 0
	var firstErr error
	for {
		batch, err := c.Transfers.ListExpired(ctx, now, limit)
		if err != nil {
			return expired, models.NewTransientError(err)
		}

		for i := range batch {
			req := &batch[i]
			won, err := c.expireOne(ctx, req, now)
			if err != nil {
				c.log().Error("failed to expire transfer", zap.String("transferId", req.ID), zap.Error(err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if !won {
				continue
			}
			expired++
			c.publish(ctx, closedEvent(req, models.EventTransferExpired, "", now))
		}

		// failed rows stay open and would be listed again
		if len(batch) < limit || firstErr != nil || ctx.Err() != nil {
			break
		}
	}

	if expired > 0 {
		c.log().Info("expired stale transfers", zap.Int("count", expired))
	}
	return expired, firstErr
}

func (c *DefaultCoordinator) expireOne(ctx context.Context, req *models.TransferRequest, now time.Time) (bool, error) {
	var won bool
	err := c.inTx(ctx, "expire", func(ctx context.Context) error {
		var err error
		won, err = c.closeRequest(ctx, req, repository.Transition{
			ID:                req.ID,
			From:              models.OpenTransferStatuses,
			To:                models.TransferExpired,
			At:                now,
			AbsoluteExpiredBy: &now,
		})
		return err
	})
	return won, err
}
