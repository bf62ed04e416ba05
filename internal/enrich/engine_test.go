package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeviceIngineering/-tocka-marketplace/internal/common"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/jobs"
	"github.com/DeviceIngineering/-tocka-marketplace/internal/moysklad"
)

type fakeClient struct {
	findProduct func(ctx context.Context, article string) (moysklad.Product, bool, error)
	stockBySlot func(ctx context.Context, productID, storeID string) ([]moysklad.SlotStock, error)
	findCalls   atomic.Int64
}

func (f *fakeClient) FindProduct(ctx context.Context, article string) (moysklad.Product, bool, error) {
	f.findCalls.Add(1)
	return f.findProduct(ctx, article)
}

func (f *fakeClient) StockBySlot(ctx context.Context, productID, storeID string) ([]moysklad.SlotStock, error) {
	return f.stockBySlot(ctx, productID, storeID)
}

func newTestEngine(client LookupClient, registry jobs.Registry) *Engine {
	return NewEngine(client, registry, nil, "store-1", 3, 0)
}

func rowsFor(articles ...string) []InputRow {
	rows := make([]InputRow, len(articles))
	for i, a := range articles {
		rows[i] = InputRow{Article: a}
	}
	return rows
}

func TestEnrichIndexStableReassembly(t *testing.T) {
	// Later rows answer faster; results must still land at their own index.
	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			switch article {
			case "A-1":
				time.Sleep(30 * time.Millisecond)
			case "A-2":
				time.Sleep(10 * time.Millisecond)
			}
			return moysklad.Product{ID: "id-" + article, Name: "товар " + article}, true, nil
		},
		stockBySlot: func(_ context.Context, productID, _ string) ([]moysklad.SlotStock, error) {
			return []moysklad.SlotStock{{SlotID: "s1", Quantity: 2}}, nil
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("A-1", "A-2", "A-3"), moysklad.SlotDirectory{"s1": "Ячейка 1"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "A-1", results[0].Article)
	assert.Equal(t, "A-2", results[1].Article)
	assert.Equal(t, "A-3", results[2].Article)
	assert.Equal(t, "товар A-1", results[0].ProductName)
}

func TestEnrichBlankArticleSkipsRemoteCall(t *testing.T) {
	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			return moysklad.Product{}, false, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return nil, nil
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("", "  "), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Result{}, results[0])
	assert.Equal(t, Result{}, results[1])
	assert.Equal(t, int64(0), client.findCalls.Load())
}

func TestEnrichRowFailureDegradesOnlyThatRow(t *testing.T) {
	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			if article == "BAD" {
				return moysklad.Product{}, false, &moysklad.APIError{Op: "find_product", StatusCode: 500, Body: "boom"}
			}
			return moysklad.Product{ID: "id-" + article, Name: article}, true, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return []moysklad.SlotStock{{SlotID: "s1", Quantity: 1}}, nil
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("A-1", "BAD", "A-3"), moysklad.SlotDirectory{"s1": "A1"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Result{}, results[1])
	assert.Equal(t, "A1 - 1 шт", results[0].SlotSummary)
	assert.Equal(t, "A1 - 1 шт", results[2].SlotSummary)
}

func TestEnrichSlotSummaryFormat(t *testing.T) {
	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			return moysklad.Product{ID: "p1", Name: "товар"}, true, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return []moysklad.SlotStock{
				{SlotID: "s1", Quantity: 4.7}, // truncated, not rounded
				{SlotID: "s2", Quantity: 0},   // zero stock dropped
				{SlotID: "s3", Quantity: 2},   // unknown slot falls back to id
				{SlotID: "", Quantity: 9},     // missing slot id dropped
				{SlotID: "s4", Quantity: -1},  // negative dropped
				{SlotID: "s5", Quantity: 1},   // order preserved
			}, nil
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	slots := moysklad.SlotDirectory{"s1": "Ячейка А", "s5": "Ячейка Б"}
	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("A-1"), slots)
	require.NoError(t, err)
	assert.Equal(t, "Ячейка А - 4 шт, s3 - 2 шт, Ячейка Б - 1 шт", results[0].SlotSummary)
}

func TestEnrichNotFoundProducesEmptyResult(t *testing.T) {
	client := &fakeClient{
		findProduct: func(_ context.Context, _ string) (moysklad.Product, bool, error) {
			return moysklad.Product{}, false, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return nil, errors.New("must not be called")
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("GONE"), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, results[0])
}

func TestEnrichPublishesFinalProgress(t *testing.T) {
	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			return moysklad.Product{ID: "p", Name: "n"}, true, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return nil, nil
		},
	}
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	rows := rowsFor("a", "b", "c", "d", "e", "f", "g")
	_, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rows, nil)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("processed %d of %d", len(rows), len(rows)), registry.GetStatus("j1"))
}

func TestEnrichCancellationDiscardsResults(t *testing.T) {
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")

	client := &fakeClient{
		findProduct: func(_ context.Context, article string) (moysklad.Product, bool, error) {
			// Cancel while work is in flight.
			registry.RequestCancel("j1")
			return moysklad.Product{ID: "p", Name: "n"}, true, nil
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return nil, nil
		},
	}

	results, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("a", "b", "c", "d"), nil)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Nil(t, results)
}

func TestEnrichCancelledBeforeStart(t *testing.T) {
	registry := jobs.NewMemoryRegistry(nil)
	registry.Create("j1")
	registry.RequestCancel("j1")

	client := &fakeClient{
		findProduct: func(_ context.Context, _ string) (moysklad.Product, bool, error) {
			return moysklad.Product{}, false, errors.New("must not be called")
		},
		stockBySlot: func(_ context.Context, _, _ string) ([]moysklad.SlotStock, error) {
			return nil, errors.New("must not be called")
		},
	}

	_, err := newTestEngine(client, registry).Enrich(context.Background(), "j1", rowsFor("a"), nil)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Equal(t, int64(0), client.findCalls.Load())
}
