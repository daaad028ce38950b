package hub

// Routing records which path actually served a message, for auditing.
type Routing struct {
	DomainName string `json:"domain_name"`
	AccountID  string `json:"account_id"`
	HandlerID  string `json:"handler_id"`
	Kind       string `json:"kind"`
}

// ErrorInfo carries in-band failure metadata when no response was produced.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Timeout bool   `json:"timeout,omitempty"`
}

// RoutedResult is the outcome of one routed message. Response is nil when
// Error is set; Routing is populated as far as resolution got.
type RoutedResult struct {
	Response map[string]any `json:"response,omitempty"`
	Routing  Routing        `json:"routing"`
	Error    *ErrorInfo     `json:"error,omitempty"`
}
