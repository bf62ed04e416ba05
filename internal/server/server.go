// Package server exposes the JSON control surface: upload a workbook, poll
// job status, cancel, submit orders, download reports.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/orders"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/processor"
)

type Server struct {
	cfg      *common.Config
	registry jobs.Registry
	proc     *processor.Processor
	orders   *orders.Engine
	logger   *slog.Logger

	// baseCtx is the lifetime context handed to spawned jobs; it outlives
	// the originating HTTP request.
	baseCtx context.Context
}

func New(cfg *common.Config, registry jobs.Registry, proc *processor.Processor, ordersEngine *orders.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		proc:     proc,
		orders:   ordersEngine,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{job_id}", s.handleStatus)
	mux.HandleFunc("POST /cancel/{job_id}", s.handleCancel)
	mux.HandleFunc("POST /create_order/{job_id}/{filename}", s.handleCreateOrder)
	mux.HandleFunc("GET /order_status/{job_id}", s.handleOrderStatus)
	mux.HandleFunc("POST /cancel_order/{job_id}", s.handleCancelOrder)
	mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /files", s.handleFiles)
	return mux
}
