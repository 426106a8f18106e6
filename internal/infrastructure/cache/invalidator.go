package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"storeledger/pkg/logger"
)

// CatalogChannel is the NOTIFY channel the catalog triggers publish on.
// Payloads are "<kind>:<ref>", e.g. "product:0190...".
const CatalogChannel = "catalog_changed"

// Invalidator drops catalog cache entries when the catalog tables change.
type Invalidator struct {
	pool  *pgxpool.Pool
	cache *CatalogCache

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewInvalidator creates an invalidator for cache.
func NewInvalidator(pool *pgxpool.Pool, cache *CatalogCache) *Invalidator {
	return &Invalidator{pool: pool, cache: cache}
}

// Start begins listening for NOTIFY events.
func (i *Invalidator) Start(ctx context.Context) {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	if i.started {
		return
	}
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.started = true

	i.wg.Add(1)
	go i.listenLoop()
	logger.Info(i.ctx, "catalog cache invalidator started")
}

// Stop ends the listener and waits for it to exit.
func (i *Invalidator) Stop() {
	i.lifecycleMu.Lock()
	if !i.started {
		i.lifecycleMu.Unlock()
		return
	}
	cancel := i.cancel
	i.started = false
	i.lifecycleMu.Unlock()

	cancel()
	i.wg.Wait()
	logger.Info(context.Background(), "catalog cache invalidator stopped")
}

func (i *Invalidator) listenLoop() {
	defer i.wg.Done()

	for i.ctx.Err() == nil {
		conn, err := i.pool.Acquire(i.ctx)
		if err != nil {
			logger.Error(i.ctx, "failed to acquire connection for LISTEN", "error", err)
			i.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(i.ctx, "LISTEN "+CatalogChannel); err != nil {
			logger.Error(i.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			i.sleep(time.Second)
			continue
		}

		i.waitForNotifications(conn)
		conn.Release()
	}
}

func (i *Invalidator) waitForNotifications(conn *pgxpool.Conn) {
	for i.ctx.Err() == nil {
		ctx, cancel := context.WithTimeout(i.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if i.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				// idle timeout
				continue
			}
			logger.Warn(i.ctx, "LISTEN connection lost", "error", err)
			return
		}

		i.handle(notification.Payload)
	}
}

func (i *Invalidator) handle(payload string) {
	kind, ref, ok := strings.Cut(payload, ":")
	if !ok || ref == "" {
		logger.Warn(i.ctx, "malformed catalog notification", "payload", payload)
		return
	}
	if err := i.cache.Invalidate(i.ctx, kind, ref); err != nil {
		logger.Warn(i.ctx, "catalog cache invalidation failed", "payload", payload, "error", err)
	}
}

func (i *Invalidator) sleep(d time.Duration) {
	select {
	case <-i.ctx.Done():
	case <-time.After(d):
	}
}
