package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const stockCacheTTL = 10 * time.Minute

// ProjectionRepository is the slice of the repository the projection
// needs.
type ProjectionRepository interface {
	SumBalanceByProduct(ctx context.Context, productID int64) (int64, error)
	UpdateProductStock(ctx context.Context, productID, quantity int64) error
	BalanceProductIDs(ctx context.Context) ([]int64, error)
}

// StockProjection maintains the denormalized per-product stock total:
// the products.stock_quantity column plus a Redis advisory cache for
// availability lookups. Balance rows remain the source of truth; the
// projection is recomputed, never incremented.
type StockProjection struct {
	repo  ProjectionRepository
	cache *redis.Client
}

// NewStockProjection builds a StockProjection. cache may be nil, in
// which case only the database column is maintained.
func NewStockProjection(repo ProjectionRepository, cache *redis.Client) *StockProjection {
	return &StockProjection{repo: repo, cache: cache}
}

// Refresh recomputes the product's total from balance rows and writes
// it to the product record and the cache.
func (p *StockProjection) Refresh(ctx context.Context, productID int64) error {
	total, err := p.repo.SumBalanceByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("stock projection: sum product %d: %w", productID, err)
	}
	if err := p.repo.UpdateProductStock(ctx, productID, total); err != nil {
		return fmt.Errorf("stock projection: update product %d: %w", productID, err)
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey(productID), total, stockCacheTTL).Err(); err != nil {
			return fmt.Errorf("stock projection: cache product %d: %w", productID, err)
		}
	}
	return nil
}

// RefreshAll recomputes every product that has balance rows. Used by
// the resync job.
func (p *StockProjection) RefreshAll(ctx context.Context) error {
	ids, err := p.repo.BalanceProductIDs(ctx)
	if err != nil {
		return fmt.Errorf("stock projection: list products: %w", err)
	}
	for _, id := range ids {
		if err := p.Refresh(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Total returns the cached total, falling back to a recompute on a
// cache miss. The result is advisory; authoritative availability
// checks go through the locked balance path.
func (p *StockProjection) Total(ctx context.Context, productID int64) (int64, error) {
	if p.cache != nil {
		val, err := p.cache.Get(ctx, cacheKey(productID)).Result()
		if err == nil {
			total, parseErr := strconv.ParseInt(val, 10, 64)
			if parseErr == nil {
				return total, nil
			}
		}
	}
	total, err := p.repo.SumBalanceByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p.cache != nil {
		_ = p.cache.Set(ctx, cacheKey(productID), total, stockCacheTTL).Err()
	}
	return total, nil
}

func cacheKey(productID int64) string {
	return fmt.Sprintf("stock:product:%d", productID)
}
