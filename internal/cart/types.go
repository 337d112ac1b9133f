package cart

// LineItem is one product in a customer's cart. Prices are whole currency
// units (INR); discount is the locally-granted admin discount per unit.
type LineItem struct {
	ProductCode   string  `json:"productCode"`
	ProductType   string  `json:"productType"`
	Quantity      int     `json:"quantity"`
	OriginalPrice float64 `json:"originalPrice"`
	SellingPrice  float64 `json:"sellingPrice"`
	Discount      float64 `json:"discount"`
	// ThyrocareRate is the upstream's list rate for this product; zero when
	// upstream has never quoted it.
	ThyrocareRate float64 `json:"thyrocareRate,omitempty"`
}

// Pricing sources for a Quote.
const (
	SourceUpstream = "upstream"
	SourceLocal    = "local"
)

// Quote is the reconciled cart: adjusted line items plus the charge
// breakdown. PricingSource records whether upstream honored the quote or the
// totals fell back to local computation.
type Quote struct {
	Items            []LineItem `json:"items"`
	ProductTotal     float64    `json:"productTotal"`
	CollectionCharge float64    `json:"collectionCharge"`
	GrandTotal       float64    `json:"grandTotal"`
	// Payable and Margin echo the upstream quote; zero on local fallback.
	Payable       float64 `json:"payable,omitempty"`
	Margin        float64 `json:"margin,omitempty"`
	PricingSource string  `json:"pricingSource"`
}
