package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RecentFile describes one generated report for the files listing.
type RecentFile struct {
	Name          string    `json:"filename"`
	Size          int64     `json:"size"`
	ModTime       time.Time `json:"-"`
	FormattedTime string    `json:"formatted_time"`
	FormattedSize string    `json:"formatted_size"`
}

// CleanOldResults keeps the keep most-recently-modified reports in dir and
// deletes the rest. Deletion is best-effort: failures are logged and
// swallowed.
func CleanOldResults(dir string, keep int, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	files := listReports(dir)
	if len(files) <= keep {
		return
	}
	for _, f := range files[keep:] {
		if err := os.Remove(filepath.Join(dir, f.Name)); err != nil {
			logger.Warn("report.retention.remove_failed", "file", f.Name, "error", err)
		}
	}
}

// RecentFiles returns metadata for the newest count reports in dir.
func RecentFiles(dir string, count int) []RecentFile {
	files := listReports(dir)
	if len(files) > count {
		files = files[:count]
	}
	return files
}

// listReports returns .xlsx entries in dir, newest first.
func listReports(dir string) []RecentFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []RecentFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xlsx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, RecentFile{
			Name:          e.Name(),
			Size:          info.Size(),
			ModTime:       info.ModTime(),
			FormattedTime: info.ModTime().Format("02.01.2006 15:04:05"),
			FormattedSize: formatSize(info.Size()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.After(files[j].ModTime) })
	return files
}

func formatSize(size int64) string {
	if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
}
