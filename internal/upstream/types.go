// Package upstream talks to the Thyrocare diagnostics API and hides its
// failure quirks from the rest of the service: HTTP 200 bodies that are
// semantically auth failures, occasional hard blocks, and short-lived keys.
package upstream

// Payload is implemented by every upstream response so the auth-failure
// detector can inspect the envelope's message field regardless of call type.
type Payload interface {
	ResponseMessage() string
}

// apiResponse is the envelope embedded in every Thyrocare response body.
// The response field carries "SUCCESS!" on success and free-form failure
// text (e.g. "Invalid Api Key") otherwise, still on an HTTP 200.
type apiResponse struct {
	Response string `json:"response"`
}

func (r apiResponse) ResponseMessage() string { return r.Response }

// LoginRequest is the credential payload for the Thyrocare login call.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	PortalType string `json:"portalType"`
	UserType   string `json:"userType"`
}

// LoginResponse carries the short-lived credential issued on login.
type LoginResponse struct {
	apiResponse
	APIKey      string `json:"apiKey"`
	AccessToken string `json:"accessToken"`
	RespID      string `json:"respId"`
	UserType    string `json:"userType"`
	IPAddress   string `json:"ipAddress,omitempty"`
}

// QuoteProduct is one cart line in a pricing-quote request.
type QuoteProduct struct {
	ProductCode string  `json:"productCode"`
	ProductType string  `json:"productType"`
	Quantity    int     `json:"quantity"`
	Rate        float64 `json:"rate"`
}

// CartQuoteRequest asks upstream for its authoritative cart pricing.
type CartQuoteRequest struct {
	APIKey   string         `json:"apiKey"`
	BenCount int            `json:"benCount"`
	Products []QuoteProduct `json:"products"`
}

// CartQuoteResponse returns the upstream-authoritative payable total and the
// maximum aggregate discount (margin) it will honor.
type CartQuoteResponse struct {
	apiResponse
	Payable float64 `json:"payable"`
	Margin  float64 `json:"margin"`
}

// LeadDetail is one beneficiary's state inside an order summary.
type LeadDetail struct {
	Name      string `json:"name"`
	LeadID    string `json:"leadId"`
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl,omitempty"`
}

// OrderSummaryResponse is the upstream's view of a booked order.
type OrderSummaryResponse struct {
	apiResponse
	OrderNo string       `json:"orderNo"`
	Status  string       `json:"status"`
	Leads   []LeadDetail `json:"leadDetails,omitempty"`
}
