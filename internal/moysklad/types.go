package moysklad

import "fmt"

// Product is the subset of a product entity the pipeline needs.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SlotDirectory maps slot id to slot name for one warehouse. Built once per
// job and shared read-only across the worker pool.
type SlotDirectory map[string]string

// SlotStock is one row of the stock-by-slot report.
type SlotStock struct {
	SlotID   string  `json:"slotId"`
	Quantity float64 `json:"stock"`
}

// OrderPosition is a single line of a customer order create request.
type OrderPosition struct {
	Assortment Ref  `json:"assortment"`
	Quantity   int  `json:"quantity"`
	Price      int  `json:"price"`
	Vat        int  `json:"vat"`
	VatEnabled bool `json:"vatEnabled"`
	Discount   int  `json:"discount"`
	Reserve    int  `json:"reserve"`
}

// CustomerOrder is the aggregate order create request body.
type CustomerOrder struct {
	Name         string          `json:"name"`
	Moment       string          `json:"moment"`
	Organization Ref             `json:"organization"`
	Agent        Ref             `json:"agent"`
	Store        Ref             `json:"store"`
	Project      Ref             `json:"project"`
	Currency     Ref             `json:"currency"`
	Positions    []OrderPosition `json:"positions"`
	Description  string          `json:"description"`
}

// CreatedOrder is the subset of the create response the caller reports back.
type CreatedOrder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ref is a MoySklad meta reference to another entity.
type Ref struct {
	Meta RefMeta `json:"meta"`
}

type RefMeta struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

// EntityRef builds a reference to an entity by type and id.
func EntityRef(baseURL, entityType, id string) Ref {
	return HrefRef(fmt.Sprintf("%s/entity/%s/%s", baseURL, entityType, id), entityType)
}

// HrefRef builds a reference from a full href.
func HrefRef(href, entityType string) Ref {
	return Ref{Meta: RefMeta{Href: href, Type: entityType}}
}

// APIError is any failure returned by or in communicating with the inventory
// service. Timeout distinguishes a deadline from other transport faults.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("moysklad %s: timeout: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("moysklad %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("moysklad %s: %v", e.Op, e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}
