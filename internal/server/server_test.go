package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/enrich"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/orders"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/processor"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/report"
)

// fakeAPI stands in for the full inventory service behind both pipelines.
type fakeAPI struct{}

func (fakeAPI) ListSlots(_ context.Context, _ string) (moysklad.SlotDirectory, error) {
	return moysklad.SlotDirectory{"s1": "Ячейка А"}, nil
}

func (fakeAPI) FindProduct(_ context.Context, article string) (moysklad.Product, bool, error) {
	if article == "A-1" {
		return moysklad.Product{ID: "p1", Name: "товар 1"}, true, nil
	}
	return moysklad.Product{}, false, nil
}

func (fakeAPI) StockBySlot(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
	return []moysklad.SlotStock{{SlotID: "s1", Quantity: 2}}, nil
}

func (fakeAPI) CreateOrder(_ context.Context, _ moysklad.CustomerOrder) (moysklad.CreatedOrder, error) {
	return moysklad.CreatedOrder{ID: "o-1", Name: "Автозаказ"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *common.Config, jobs.Registry) {
	t.Helper()
	cfg := &common.Config{
		Order: common.OrderConfig{
			OrganizationID: "org-1",
			CounterpartyID: "agent-1",
			StoreID:        "store-1",
			ProjectID:      "project-1",
			CurrencyHref:   "https://api.example/entity/currency/643",
			VatPercent:     20,
		},
		Storage: common.StorageConfig{
			UploadDir:   t.TempDir(),
			ResultDir:   t.TempDir(),
			MaxResults:  50,
			RecentFiles: 10,
		},
	}

	registry := jobs.NewMemoryRegistry(nil)
	api := fakeAPI{}
	engine := enrich.NewEngine(api, registry, nil, "store-1", 3, 0)
	writer := report.NewWriter(nil, 5, time.Millisecond)
	proc := processor.NewProcessor(api, engine, writer, registry, nil, "store-1", cfg.Storage.ResultDir, cfg.Storage.MaxResults)
	ordersEngine := orders.NewEngine(api, registry, nil, cfg.Order, "https://api.example", 0)

	srv := httptest.NewServer(New(cfg, registry, proc, ordersEngine, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, cfg, registry
}

func workbookBytes(t *testing.T, headers []string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, f.SetCellValue("Sheet1", cell, h))
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadFile(t *testing.T, url, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// pollStatus polls /status until the job reaches a terminal state.
func pollStatus(t *testing.T, url, jobID string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/status/" + jobID)
		require.NoError(t, err)
		var body map[string]string
		decodeJSON(t, resp, &body)
		status := body["status"]
		for _, terminal := range []string{constants.StatusCompleted, constants.StatusCancelled, constants.StatusError} {
			if strings.HasPrefix(status, terminal) {
				return status
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return ""
}

func TestUploadStatusDownloadFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)

	content := workbookBytes(t,
		[]string{"Артикул", "Кол-во", "№ стикера"},
		[][]any{{"A-1", 2, "12345678"}},
	)
	resp := uploadFile(t, srv.URL, "orders.xlsx", content)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	decodeJSON(t, resp, &accepted)
	require.NotEmpty(t, accepted["job_id"])
	require.Equal(t, "result_"+accepted["job_id"]+".xlsx", accepted["result_file"])

	status := pollStatus(t, srv.URL, accepted["job_id"])
	assert.True(t, strings.HasPrefix(status, constants.StatusCompleted), status)

	dl, err := http.Get(srv.URL + "/download/" + accepted["result_file"])
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), accepted["result_file"])

	files, err := http.Get(srv.URL + "/files")
	require.NoError(t, err)
	var listing struct {
		Files []report.RecentFile `json:"files"`
	}
	decodeJSON(t, files, &listing)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, accepted["result_file"], listing.Files[0].Name)
}

func TestUploadRejections(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name     string
		filename string
	}{
		{"legacy xls", "orders.xls"},
		{"csv", "orders.csv"},
		{"no extension", "orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := uploadFile(t, srv.URL, tt.filename, []byte("not a workbook"))
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	t.Run("missing file field", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStatusUnknownJob(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/status/nope")
	require.NoError(t, err)
	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, constants.StatusNoData, body["status"])
}

func TestCancelEndpoint(t *testing.T) {
	srv, _, registry := newTestServer(t)
	registry.Create("j1")

	resp, err := http.Post(srv.URL+"/cancel/j1", "", nil)
	require.NoError(t, err)
	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "cancelled", body["status"])
	assert.True(t, registry.IsCancelled("j1"))
}

func TestCreateOrderMissingReportFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/create_order/j1/absent.xlsx", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrderFlow(t *testing.T) {
	srv, cfg, registry := newTestServer(t)

	content := workbookBytes(t,
		[]string{"Артикул", "Количество"},
		[][]any{{"A-1", 2}},
	)
	reportPath := filepath.Join(cfg.Storage.ResultDir, "result_j1.xlsx")
	require.NoError(t, os.WriteFile(reportPath, content, 0o644))

	resp, err := http.Post(srv.URL+"/create_order/j1/result_j1.xlsx", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		Success    bool   `json:"success"`
		OrderJobID string `json:"order_job_id"`
	}
	decodeJSON(t, resp, &accepted)
	require.True(t, accepted.Success)
	require.NotEmpty(t, accepted.OrderJobID)

	status := pollStatus(t, srv.URL, accepted.OrderJobID)
	assert.True(t, strings.HasPrefix(status, constants.StatusCompleted), status)

	stored, ok := registry.Result(accepted.OrderJobID)
	require.True(t, ok)
	res, ok := stored.(orders.Result)
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, "o-1", res.OrderID)

	orderStatus, err := http.Get(srv.URL + "/order_status/" + accepted.OrderJobID)
	require.NoError(t, err)
	var body struct {
		Status    string `json:"status"`
		Completed bool   `json:"completed"`
	}
	decodeJSON(t, orderStatus, &body)
	assert.True(t, body.Completed)
	assert.True(t, strings.HasPrefix(body.Status, constants.StatusCompleted))
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	srv, cfg, _ := newTestServer(t)

	// A file one level above the results dir must stay unreachable.
	outside := filepath.Join(filepath.Dir(cfg.Storage.ResultDir), "secret.xlsx")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/download/..%2Fsecret.xlsx", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadMissingFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/download/result_nope.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
