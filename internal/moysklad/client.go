package moysklad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/observability"
)

// slotPageSize is the page size used when walking the slot directory.
const slotPageSize = 1000

// Client wraps the MoySklad remap API. Every call carries a request timeout;
// non-2xx responses and transport faults surface as *APIError. Lookups and
// the order create call have separate timeouts: a create is one large write
// the service is noticeably slower to answer.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	logger        *slog.Logger
	lookupTimeout time.Duration
	orderTimeout  time.Duration
}

func NewClient(baseURL, token string, lookupTimeout, orderTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 15 * time.Second
	}
	if orderTimeout <= 0 {
		orderTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		token:         token,
		httpClient:    &http.Client{},
		logger:        logger,
		lookupTimeout: lookupTimeout,
		orderTimeout:  orderTimeout,
	}
}

// FindProduct resolves an article to a product id and name. An article with no
// match returns found=false and no error; only transport/API failures error.
func (c *Client) FindProduct(ctx context.Context, article string) (Product, bool, error) {
	q := url.Values{}
	q.Set("filter", "article="+article)
	q.Set("limit", "1")

	var out struct {
		Rows []Product `json:"rows"`
	}
	if err := c.get(ctx, "find_product", "/entity/product?"+q.Encode(), &out); err != nil {
		return Product{}, false, err
	}
	if len(out.Rows) == 0 {
		return Product{}, false, nil
	}
	return out.Rows[0], true, nil
}

// ListSlots fetches the full slot directory for a warehouse, following offset
// pages until the service returns a short page.
func (c *Client) ListSlots(ctx context.Context, storeID string) (SlotDirectory, error) {
	dir := make(SlotDirectory)
	for offset := 0; ; offset += slotPageSize {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(slotPageSize))
		q.Set("offset", strconv.Itoa(offset))

		var out struct {
			Rows []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"rows"`
		}
		path := fmt.Sprintf("/entity/store/%s/slots?%s", storeID, q.Encode())
		if err := c.get(ctx, "list_slots", path, &out); err != nil {
			return nil, err
		}
		for _, row := range out.Rows {
			dir[row.ID] = row.Name
		}
		if len(out.Rows) < slotPageSize {
			return dir, nil
		}
	}
}

// StockBySlot returns current on-hand stock per slot for one product at one
// warehouse, in the order the report returns it.
func (c *Client) StockBySlot(ctx context.Context, productID, storeID string) ([]SlotStock, error) {
	q := url.Values{}
	q.Add("filter", "assortmentId="+productID)
	q.Add("filter", "storeId="+storeID)
	q.Add("limit", strconv.Itoa(slotPageSize))

	var out struct {
		Rows []SlotStock `json:"rows"`
	}
	if err := c.get(ctx, "stock_by_slot", "/report/stock/byslot/current?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// CreateOrder issues the single aggregate customer order create call.
func (c *Client) CreateOrder(ctx context.Context, order CustomerOrder) (CreatedOrder, error) {
	var out CreatedOrder
	if err := c.post(ctx, "create_order", "/entity/customerorder", c.orderTimeout, order, &out); err != nil {
		return CreatedOrder{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *Client) post(ctx context.Context, op, path string, timeout time.Duration, body, out any) error {
	bs, err := json.Marshal(body)
	if err != nil {
		return &APIError{Op: op, Err: fmt.Errorf("encode json: %w", err)}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bs))
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	reqID := uuid.New().String()
	start := time.Now()

	// Accept-Encoding is left to the transport so gzip responses are
	// decompressed transparently.
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	observability.RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		apiErr := &APIError{Op: op, Timeout: isTimeout(err), Err: err}
		c.logger.Error("moysklad.request_error",
			"req_id", reqID, "op", op, "timeout", apiErr.Timeout, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return apiErr
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warn("moysklad.body_close_error", "req_id", reqID, "op", op, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("moysklad.response",
		"req_id", reqID,
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func isTimeout(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
