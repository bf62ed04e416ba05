package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleUpload accepts a workbook, registers an enrichment job, and starts it
// in the background. The caller polls /status with the returned job id.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file in request"})
		return
	}
	defer file.Close()

	// Legacy BIFF .xls is rejected up front: the workbook reader only
	// understands .xlsx, so accepting it would just fail the job later.
	name := filepath.Base(header.Filename)
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only .xlsx files are accepted"})
		return
	}

	jobID := jobs.NewID()
	inputPath := filepath.Join(s.cfg.Storage.UploadDir, jobID+"_"+name)
	resultName := "result_" + jobID + ".xlsx"
	outputPath := filepath.Join(s.cfg.Storage.ResultDir, resultName)

	dst, err := os.Create(inputPath)
	if err != nil {
		s.logger.Error("server.upload.create_failed", "path", inputPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store upload"})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		s.logger.Error("server.upload.copy_failed", "path", inputPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not store upload"})
		return
	}
	dst.Close()

	s.registry.Create(jobID)
	s.registry.SetStatus(jobID, "starting processing")
	go s.proc.ProcessFile(s.baseCtx, jobID, inputPath, outputPath)

	s.logger.Info("server.upload.accepted", "job_id", jobID, "file", name)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":      jobID,
		"result_file": resultName,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	writeJSON(w, http.StatusOK, map[string]string{"status": s.registry.GetStatus(jobID)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.registry.RequestCancel(r.PathValue("job_id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleCreateOrder starts an order submission job for a previously generated
// report file.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	filename := filepath.Base(r.PathValue("filename"))
	path := filepath.Join(s.cfg.Storage.ResultDir, filename)

	if _, err := os.Stat(path); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}

	orderJobID := fmt.Sprintf("order_%s_%d", jobID, time.Now().Unix())
	s.registry.Create(orderJobID)
	s.registry.SetStatus(orderJobID, "initializing order creation")
	go s.orders.SubmitFromFile(s.baseCtx, orderJobID, path)

	s.logger.Info("server.order.accepted", "order_job_id", orderJobID, "file", filename)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":      true,
		"order_job_id": orderJobID,
	})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	result, completed := s.registry.Result(jobID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    s.registry.GetStatus(jobID),
		"result":    result,
		"completed": completed,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	s.registry.RequestCancel(r.PathValue("job_id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.PathValue("filename"))
	path := filepath.Join(s.cfg.Storage.ResultDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file not found"})
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	http.ServeFile(w, r, path)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files := report.RecentFiles(s.cfg.Storage.ResultDir, s.cfg.Storage.RecentFiles)
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}
