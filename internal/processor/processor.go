// Package processor coordinates one enrichment job end to end: read the
// uploaded table, locate its columns, fetch the slot directory, enrich every
// row, and persist the formatted report.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/enrich"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/observability"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/report"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/table"
)

// SlotLister fetches the warehouse slot directory shared by all row lookups.
type SlotLister interface {
	ListSlots(ctx context.Context, storeID string) (moysklad.SlotDirectory, error)
}

type Processor struct {
	slots      SlotLister
	engine     *enrich.Engine
	writer     *report.Writer
	registry   jobs.Registry
	logger     *slog.Logger
	storeID    string
	resultDir  string
	maxResults int
}

func NewProcessor(slots SlotLister, engine *enrich.Engine, writer *report.Writer, registry jobs.Registry, logger *slog.Logger, storeID, resultDir string, maxResults int) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		slots:      slots,
		engine:     engine,
		writer:     writer,
		registry:   registry,
		logger:     logger,
		storeID:    storeID,
		resultDir:  resultDir,
		maxResults: maxResults,
	}
}

// ProcessFile runs the enrichment job under jobID. All failures terminate via
// the registry's status channel; nothing panics past the job boundary.
func (p *Processor) ProcessFile(ctx context.Context, jobID, inputPath, outputPath string) {
	observability.JobsStarted.WithLabelValues(string(constants.JobTypeEnrichment)).Inc()
	log := p.logger.With("job_id", jobID)

	finish := func(status, message string) {
		p.registry.Finish(jobID, status+": "+message)
		observability.JobsFinished.WithLabelValues(string(constants.JobTypeEnrichment), status).Inc()
	}

	p.registry.SetStatus(jobID, "reading input file")
	t, err := table.ReadWorkbook(inputPath)
	if err != nil {
		log.Error("processor.read.failed", "path", inputPath, "error", err)
		finish(constants.StatusError, fmt.Sprintf("read input: %v", err))
		return
	}
	log.Info("processor.read.ok", "rows", t.Len(), "columns", len(t.Headers))

	if p.registry.IsCancelled(jobID) {
		finish(constants.StatusCancelled, "cancelled by user")
		return
	}

	rows, err := p.resolveRows(t)
	if err != nil {
		log.Error("processor.columns.failed", "error", err)
		finish(constants.StatusError, err.Error())
		return
	}

	p.registry.SetStatus(jobID, "fetching warehouse slots")
	slots, err := p.slots.ListSlots(ctx, p.storeID)
	if err != nil {
		log.Error("processor.slots.failed", "error", err)
		finish(constants.StatusError, fmt.Sprintf("fetch slots: %v", err))
		return
	}
	p.registry.SetStatus(jobID, fmt.Sprintf("received %d warehouse slots", len(slots)))

	if p.registry.IsCancelled(jobID) {
		finish(constants.StatusCancelled, "cancelled by user")
		return
	}

	p.registry.SetStatus(jobID, fmt.Sprintf("processing %d articles", len(rows)))
	results, err := p.engine.Enrich(ctx, jobID, rows, slots)
	if err != nil {
		if errors.Is(err, common.ErrCancelled) {
			log.Info("processor.cancelled")
			finish(constants.StatusCancelled, "cancelled by user")
			return
		}
		log.Error("processor.enrich.failed", "error", err)
		finish(constants.StatusError, fmt.Sprintf("enrich: %v", err))
		return
	}

	if p.registry.IsCancelled(jobID) {
		finish(constants.StatusCancelled, "cancelled by user")
		return
	}

	if err := p.writer.Write(jobID, rows, results, outputPath, p.registry); err != nil {
		if errors.Is(err, common.ErrCancelled) {
			log.Info("processor.cancelled")
			finish(constants.StatusCancelled, "cancelled by user")
			return
		}
		log.Error("processor.write.failed", "path", outputPath, "error", err)
		finish(constants.StatusError, fmt.Sprintf("write report: %v", err))
		return
	}

	report.CleanOldResults(p.resultDir, p.maxResults, log)
	log.Info("processor.done", "rows", len(rows), "output", outputPath)
	finish(constants.StatusCompleted, "report ready")
}

// resolveRows locates the semantic columns and materializes the input rows.
// Article and quantity are required, and at least one of the sticker/order
// columns must exist; anything else is a structural failure for the job.
func (p *Processor) resolveRows(t *table.Table) ([]enrich.InputRow, error) {
	articleCol := table.Resolve(t.Headers, constants.ArticleColumns)
	quantityCol := table.ResolveNumeric(t, constants.QuantityColumns)
	stickerCol := table.Resolve(t.Headers, constants.StickerColumns)
	orderCol := table.Resolve(t.Headers, constants.OrderColumns)

	if articleCol == table.NotFound || quantityCol == table.NotFound {
		return nil, fmt.Errorf("required columns (article, quantity) not found")
	}
	if stickerCol == table.NotFound && orderCol == table.NotFound {
		return nil, fmt.Errorf("neither sticker nor order number column found")
	}

	rows := make([]enrich.InputRow, t.Len())
	for i := range rows {
		rows[i] = enrich.InputRow{
			Article:  t.Cell(i, articleCol),
			Quantity: table.ParseQuantity(t.Cell(i, quantityCol)),
		}
		if stickerCol != table.NotFound {
			rows[i].Sticker = t.Cell(i, stickerCol)
		}
		if orderCol != table.NotFound {
			rows[i].OrderCode = t.Cell(i, orderCol)
		}
	}
	return rows, nil
}
