package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// PaymentRequest asks the backend to open a payment session.
// CourseID and StageID are omitted when zero.
type PaymentRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	OrderID     string  `json:"orderId"`
	CourseID    int     `json:"courseId,omitempty"`
	StageID     int     `json:"stageId,omitempty"`
}

// PaymentSession is an opened payment session.
type PaymentSession struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
}

type paymentStatusResponse struct {
	PaymentID string               `json:"paymentId"`
	Status    models.PaymentStatus `json:"status"`
}

// CreatePayment opens a payment session. The stored token is attached when present.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	var out PaymentSession
	if err := c.do(ctx, http.MethodPost, "/api/payment/create", c.optionalToken(ctx), req, &out); err != nil {
		return PaymentSession{}, err
	}
	if out.PaymentID == "" || out.PaymentURL == "" {
		return PaymentSession{}, &Error{Status: http.StatusOK, Message: "payment session is incomplete"}
	}
	return out, nil
}

// PaymentStatus reports the state of a payment session.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (models.PaymentStatus, error) {
	var out paymentStatusResponse
	path := "/api/payment/status/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, c.optionalToken(ctx), nil, &out); err != nil {
		return "", err
	}
	switch out.Status {
	case models.PaymentSuccess, models.PaymentFailed, models.PaymentPending:
		return out.Status, nil
	default:
		return models.PaymentPending, nil
	}
}
