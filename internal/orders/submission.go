// Package orders validates a generated report and submits one aggregate
// customer order back to the inventory service.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/observability"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/table"
)

// Result is the structured outcome of one submission job. Error is set
// instead of the success fields when the job failed or was cancelled.
type Result struct {
	Success          bool     `json:"success"`
	OrderID          string   `json:"order_id,omitempty"`
	OrderName        string   `json:"order_name,omitempty"`
	PositionsAdded   int      `json:"positions_added"`
	TotalItems       int      `json:"total_items"`
	NotFoundArticles []string `json:"not_found_articles,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Client is the slice of the inventory API submission needs.
type Client interface {
	FindProduct(ctx context.Context, article string) (moysklad.Product, bool, error)
	CreateOrder(ctx context.Context, order moysklad.CustomerOrder) (moysklad.CreatedOrder, error)
}

type validItem struct {
	article  string
	quantity int
}

// Engine runs order submission jobs. It shares the registry's
// progress/cancellation machinery with the enrichment pipeline but resolves
// articles sequentially: a submission is small and ordering its log output by
// row is worth more than the parallelism.
type Engine struct {
	client      Client
	registry    jobs.Registry
	logger      *slog.Logger
	cfg         common.OrderConfig
	baseURL     string
	lookupDelay time.Duration
}

func NewEngine(client Client, registry jobs.Registry, logger *slog.Logger, cfg common.OrderConfig, baseURL string, lookupDelay time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:      client,
		registry:    registry,
		logger:      logger,
		cfg:         cfg,
		baseURL:     baseURL,
		lookupDelay: lookupDelay,
	}
}

// SubmitFromFile reads the report at path and runs the submission job under
// jobID. The returned Result is also stored in the registry so pollers can
// collect it.
func (e *Engine) SubmitFromFile(ctx context.Context, jobID, path string) Result {
	observability.JobsStarted.WithLabelValues(string(constants.JobTypeOrder)).Inc()
	res := e.run(ctx, jobID, path)
	e.registry.SetResult(jobID, res)

	switch {
	case res.Success:
		e.registry.Finish(jobID, fmt.Sprintf("%s: order %s created, %d of %d positions added",
			constants.StatusCompleted, res.OrderName, res.PositionsAdded, res.TotalItems))
		observability.JobsFinished.WithLabelValues(string(constants.JobTypeOrder), constants.StatusCompleted).Inc()
	case res.Error == cancelledMessage:
		e.registry.Finish(jobID, constants.StatusCancelled+": "+res.Error)
		observability.JobsFinished.WithLabelValues(string(constants.JobTypeOrder), constants.StatusCancelled).Inc()
	default:
		e.registry.Finish(jobID, constants.StatusError+": "+res.Error)
		observability.JobsFinished.WithLabelValues(string(constants.JobTypeOrder), constants.StatusError).Inc()
	}
	return res
}

const cancelledMessage = "order creation cancelled by user"

func (e *Engine) run(ctx context.Context, jobID, path string) Result {
	if e.registry.IsCancelled(jobID) {
		return Result{Error: cancelledMessage}
	}

	e.registry.SetStatus(jobID, "reading report file")
	t, err := table.ReadWorkbook(path)
	if err != nil {
		return Result{Error: fmt.Sprintf("read report: %v", err)}
	}

	// Missing required columns fail the whole submission, never per-row.
	articleCol := table.Resolve(t.Headers, constants.ArticleColumns)
	quantityCol := table.Resolve(t.Headers, constants.QuantityColumns)
	if articleCol == table.NotFound || quantityCol == table.NotFound {
		return Result{Error: "required columns (article, quantity) not found in report"}
	}

	e.registry.SetStatus(jobID, "filtering valid items")
	var items []validItem
	for i := 0; i < t.Len(); i++ {
		if e.registry.IsCancelled(jobID) {
			return Result{Error: cancelledMessage}
		}
		article := strings.TrimSpace(t.Cell(i, articleCol))
		qty := table.ParseQuantity(t.Cell(i, quantityCol))
		if article == "" || qty <= 0 {
			continue
		}
		items = append(items, validItem{article: article, quantity: int(qty)})
	}
	if len(items) == 0 {
		return Result{Error: "no valid items to add to the order"}
	}

	positions, notFound := e.resolvePositions(ctx, jobID, items)
	if e.registry.IsCancelled(jobID) {
		return Result{Error: cancelledMessage}
	}
	if len(positions) == 0 {
		return Result{
			TotalItems:       len(items),
			NotFoundArticles: notFound,
			Error:            "none of the articles were found: " + strings.Join(notFound, ", "),
		}
	}

	e.registry.SetStatus(jobID, "creating order")
	order := e.buildOrder(positions, notFound)

	if e.registry.IsCancelled(jobID) {
		return Result{Error: cancelledMessage}
	}
	created, err := e.client.CreateOrder(ctx, order)
	if err != nil {
		return Result{
			TotalItems:       len(items),
			NotFoundArticles: notFound,
			Error:            submissionErrorMessage(err),
		}
	}

	e.logger.Info("orders.created",
		"job_id", jobID,
		"order_id", created.ID,
		"positions", len(positions),
		"not_found", len(notFound),
	)
	return Result{
		Success:          true,
		OrderID:          created.ID,
		OrderName:        created.Name,
		PositionsAdded:   len(positions),
		TotalItems:       len(items),
		NotFoundArticles: notFound,
	}
}

// resolvePositions maps articles to product refs one by one. Articles that do
// not resolve are collected, not fatal; an early cancel returns what was
// gathered so far (the caller checks the flag).
func (e *Engine) resolvePositions(ctx context.Context, jobID string, items []validItem) ([]moysklad.OrderPosition, []string) {
	var positions []moysklad.OrderPosition
	var notFound []string
	for i, item := range items {
		if e.registry.IsCancelled(jobID) {
			return positions, notFound
		}
		e.registry.SetStatus(jobID, fmt.Sprintf("resolving products %d of %d: %s", i+1, len(items), item.article))

		product, found, err := e.client.FindProduct(ctx, item.article)
		switch {
		case err != nil:
			e.logger.Warn("orders.lookup_failed", "job_id", jobID, "article", item.article, "error", err)
			notFound = append(notFound, item.article)
		case !found:
			notFound = append(notFound, item.article)
		default:
			positions = append(positions, moysklad.OrderPosition{
				Assortment: moysklad.EntityRef(e.baseURL, "product", product.ID),
				Quantity:   item.quantity,
				Price:      0,
				Vat:        e.cfg.VatPercent,
				VatEnabled: true,
				Discount:   0,
				Reserve:    0,
			})
		}
		time.Sleep(e.lookupDelay)
	}
	return positions, notFound
}

func (e *Engine) buildOrder(positions []moysklad.OrderPosition, notFound []string) moysklad.CustomerOrder {
	now := time.Now()
	description := fmt.Sprintf("Создан автоматически из файла. Добавлено позиций: %d", len(positions))
	if len(notFound) > 0 {
		description += ". Не найдены артикулы: " + strings.Join(notFound, ", ")
	}
	return moysklad.CustomerOrder{
		Name:         "Автозаказ " + now.Format("02.01.2006 15:04"),
		Moment:       now.UTC().Format("2006-01-02 15:04:05"),
		Organization: moysklad.EntityRef(e.baseURL, "organization", e.cfg.OrganizationID),
		Agent:        moysklad.EntityRef(e.baseURL, "counterparty", e.cfg.CounterpartyID),
		Store:        moysklad.EntityRef(e.baseURL, "store", e.cfg.StoreID),
		Project:      moysklad.EntityRef(e.baseURL, "project", e.cfg.ProjectID),
		Currency:     moysklad.HrefRef(e.cfg.CurrencyHref, "currency"),
		Positions:    positions,
		Description:  description,
	}
}

// submissionErrorMessage maps each failure cause to a distinct message.
func submissionErrorMessage(err error) string {
	var apiErr *moysklad.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Timeout:
			return "inventory API did not respond in time"
		case apiErr.StatusCode != 0:
			return fmt.Sprintf("inventory API error: %d - %s", apiErr.StatusCode, apiErr.Body)
		}
	}
	return fmt.Sprintf("order creation failed: %v", err)
}
