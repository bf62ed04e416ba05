// Package enrich runs the per-row lookup chain against the inventory service:
// article → product → stock by slot → human-readable slot summary.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/observability"
)

// progressEvery is how many completed rows pass between progress updates.
const progressEvery = 5

// InputRow is one record of the source table. Rows are identified by their
// original position only; articles may repeat or be blank.
type InputRow struct {
	Article   string
	Quantity  float64
	Sticker   string
	OrderCode string
}

// Result is the enrichment outcome for one row. A failed or empty lookup
// leaves every field blank; the row itself is never dropped.
type Result struct {
	Article     string
	ProductName string
	SlotSummary string
}

// LookupClient is the slice of the inventory API the engine needs.
type LookupClient interface {
	FindProduct(ctx context.Context, article string) (moysklad.Product, bool, error)
	StockBySlot(ctx context.Context, productID, storeID string) ([]moysklad.SlotStock, error)
}

// Engine fans out one lookup chain per row over a bounded worker pool and
// reassembles results by original row index.
type Engine struct {
	client   LookupClient
	registry jobs.Registry
	logger   *slog.Logger
	storeID  string
	workers  int
	rowDelay time.Duration
}

func NewEngine(client LookupClient, registry jobs.Registry, logger *slog.Logger, storeID string, workers int, rowDelay time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 3
	}
	return &Engine{
		client:   client,
		registry: registry,
		logger:   logger,
		storeID:  storeID,
		workers:  workers,
		rowDelay: rowDelay,
	}
}

// Enrich processes every row and returns exactly len(rows) results in the
// original row order, regardless of remote completion order. Row-level
// failures degrade to an empty result; the only error returned is
// common.ErrCancelled, in which case partial results are discarded.
func (e *Engine) Enrich(ctx context.Context, jobID string, rows []InputRow, slots moysklad.SlotDirectory) ([]Result, error) {
	results := make([]Result, len(rows))
	total := len(rows)

	var done atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(e.workers)

	for idx := range rows {
		if e.registry.IsCancelled(jobID) {
			break
		}
		idx := idx
		row := rows[idx]
		g.Go(func() error {
			if e.registry.IsCancelled(jobID) {
				return nil
			}
			results[idx] = e.lookupRow(ctx, jobID, row.Article, slots)
			observability.RowsProcessed.Inc()

			n := done.Add(1)
			if n%progressEvery == 0 || n == int64(total) {
				e.registry.SetStatus(jobID, fmt.Sprintf("processed %d of %d", n, total))
			}
			return nil
		})
	}
	_ = g.Wait()

	if e.registry.IsCancelled(jobID) {
		return nil, common.ErrCancelled
	}
	return results, nil
}

// lookupRow resolves one article. Blank articles and not-found products are
// normal empty outcomes; remote failures are logged and degrade the row to an
// empty result without touching its siblings.
func (e *Engine) lookupRow(ctx context.Context, jobID, article string, slots moysklad.SlotDirectory) Result {
	article = strings.TrimSpace(article)
	if article == "" {
		return Result{}
	}

	product, found, err := e.client.FindProduct(ctx, article)
	if err != nil {
		e.logger.Warn("enrich.row.failed", "job_id", jobID, "article", article, "error", err)
		return Result{}
	}
	if !found {
		return Result{}
	}

	stock, err := e.client.StockBySlot(ctx, product.ID, e.storeID)
	if err != nil {
		e.logger.Warn("enrich.row.failed", "job_id", jobID, "article", article, "error", err)
		return Result{}
	}

	parts := make([]string, 0, len(stock))
	for _, entry := range stock {
		if entry.SlotID == "" || entry.Quantity <= 0 {
			continue
		}
		name := slots[entry.SlotID]
		if name == "" {
			name = entry.SlotID
		}
		parts = append(parts, fmt.Sprintf("%s - %d шт", name, int(entry.Quantity)))
	}

	// Throttle between rows; the service's rate limit is undocumented but real.
	time.Sleep(e.rowDelay)

	return Result{
		Article:     article,
		ProductName: product.Name,
		SlotSummary: strings.Join(parts, ", "),
	}
}
