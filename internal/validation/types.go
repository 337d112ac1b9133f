package validation

// CartItemPayload is a single cart line in a validation request.
type CartItemPayload struct {
	ProductCode   string  `json:"productCode" validate:"required"`
	ProductType   string  `json:"productType" validate:"required,oneof=TEST PROFILE OFFER"`
	Quantity      int     `json:"quantity" validate:"required,min=1"`
	OriginalPrice float64 `json:"originalPrice" validate:"required,gt=0"`
	Discount      float64 `json:"discount" validate:"gte=0"`
	ThyrocareRate float64 `json:"thyrocareRate,omitempty" validate:"gte=0"`
}

// ValidateCartRequest is the payload for POST /cart/validate.
type ValidateCartRequest struct {
	BenCount int               `json:"benCount" validate:"required,min=1,max=10"`
	Items    []CartItemPayload `json:"items" validate:"required,min=1,dive"`
	Pincode  string            `json:"pincode,omitempty"` // serviceability is checked elsewhere
}

// TriggerSyncRequest is the payload for POST /admin/orders/sync. An empty
// OrderID queues a full sync run.
type TriggerSyncRequest struct {
	OrderID string `json:"orderId,omitempty"`
}
