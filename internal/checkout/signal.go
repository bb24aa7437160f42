package checkout

import (
	"encoding/json"
	"strings"
)

// Signal is what the payment page reported.
type Signal int

const (
	SignalNone Signal = iota
	SignalSuccess
	SignalFailure
)

func (s Signal) String() string {
	switch s {
	case SignalSuccess:
		return "success"
	case SignalFailure:
		return "failure"
	}
	return "none"
}

// Markers are matched as substrings in order; success markers win.
var (
	successMarkers = []string{"/api/payment/success", "test-payment-success", "payment-success", "success"}
	failureMarkers = []string{"/api/payment/cancel", "test-payment-fail", "payment-failed", "payment-cancel", "fail", "error"}
)

// ParseURL classifies a URL the payment page navigated to.
func ParseURL(rawURL string) Signal {
	u := strings.ToLower(rawURL)
	for _, m := range successMarkers {
		if strings.Contains(u, m) {
			return SignalSuccess
		}
	}
	for _, m := range failureMarkers {
		if strings.Contains(u, m) {
			return SignalFailure
		}
	}
	return SignalNone
}

// Message is the payload the payment page posts to its host.
type Message struct {
	Type      string `json:"type"`
	PaymentID string `json:"paymentId,omitempty"`
}

// Message types posted by the payment page.
const (
	MessageSuccess = "payment-success"
	MessageFailed  = "payment-failed"
)

// ParseMessage classifies a posted payload. Unparseable payloads are SignalNone.
func ParseMessage(data []byte) (Signal, string) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return SignalNone, ""
	}
	switch m.Type {
	case MessageSuccess:
		return SignalSuccess, m.PaymentID
	case MessageFailed:
		return SignalFailure, m.PaymentID
	}
	return SignalNone, m.PaymentID
}
