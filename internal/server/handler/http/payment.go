package http

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/checkout"
	"github.com/atinyakov/CourseKeeper/internal/middleware"
	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/service"
)

// PaymentService defines the payment operations required by PaymentHandler.
type PaymentService interface {
	Create(ctx context.Context, userID string, req service.PaymentRequest) (models.Payment, error)
	Get(ctx context.Context, id string) (models.Payment, error)
	Complete(ctx context.Context, id string, success bool) (models.Payment, error)
}

// PaymentHandler serves payment sessions and the test checkout page.
type PaymentHandler struct {
	PaymentService PaymentService
	// PublicURL prefixes the payment page links handed to clients.
	PublicURL string
}

type createPaymentRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	OrderID     string  `json:"orderId"`
	CourseID    int     `json:"courseId"`
	StageID     int     `json:"stageId"`
}

type createPaymentResponse struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
}

type paymentStatusResponse struct {
	PaymentID string               `json:"paymentId"`
	Status    models.PaymentStatus `json:"status"`
}

// Create handles POST /api/payment/create.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := h.PaymentService.Create(r.Context(), middleware.GetUserIDFromContext(r.Context()), service.PaymentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		OrderID:     req.OrderID,
		CourseID:    req.CourseID,
		StageID:     req.StageID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createPaymentResponse{
		PaymentID:  p.ID,
		PaymentURL: strings.TrimRight(h.PublicURL, "/") + "/pay/" + url.PathEscape(p.ID),
	})
}

// Status handles GET /api/payment/status/{id}.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, err := h.PaymentService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{PaymentID: p.ID, Status: p.Status})
}

var pageTmpl = template.Must(template.New("pay").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Payment}}<p>{{.Payment.Description}}: {{.Amount}} {{.Payment.Currency}}</p>{{end}}
{{if .Pending}}<p><a href="/api/payment/success?paymentId={{.Payment.ID}}">Pay</a> | <a href="/api/payment/cancel?paymentId={{.Payment.ID}}">Cancel</a></p>{{end}}
{{if .Message}}<script>window.parent && window.parent.postMessage({{.Message}}, "*");</script>{{end}}
</body></html>
`))

type pageData struct {
	Title   string
	Payment *models.Payment
	Amount  string
	Pending bool
	Message string
}

func renderPage(w http.ResponseWriter, status int, d pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, d)
}

// Page handles GET /pay/{id}, the test checkout page.
func (h *PaymentHandler) Page(w http.ResponseWriter, r *http.Request) {
	p, err := h.PaymentService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderPage(w, http.StatusNotFound, pageData{Title: "Payment not found"})
		return
	}
	renderPage(w, http.StatusOK, pageData{
		Title:   "Test payment",
		Payment: &p,
		Amount:  catalog.FormatPrice(p.Amount),
		Pending: p.Status == models.PaymentPending,
	})
}

// Success handles GET /api/payment/success?paymentId=.
func (h *PaymentHandler) Success(w http.ResponseWriter, r *http.Request) { h.complete(w, r, true) }

// Cancel handles GET /api/payment/cancel?paymentId=.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) { h.complete(w, r, false) }

func (h *PaymentHandler) complete(w http.ResponseWriter, r *http.Request, success bool) {
	id := r.URL.Query().Get("paymentId")
	if id == "" {
		renderPage(w, http.StatusBadRequest, pageData{Title: "Missing payment"})
		return
	}
	p, err := h.PaymentService.Complete(r.Context(), id, success)
	if err != nil && p.ID == "" {
		renderPage(w, http.StatusNotFound, pageData{Title: "Payment not found"})
		return
	}

	d := pageData{Title: "Payment failed", Payment: &p, Amount: catalog.FormatPrice(p.Amount)}
	msg := checkout.Message{Type: checkout.MessageFailed, PaymentID: p.ID}
	if p.Status == models.PaymentSuccess {
		d.Title = "Payment successful"
		msg.Type = checkout.MessageSuccess
	}
	if b, err := json.Marshal(msg); err == nil {
		d.Message = string(b)
	}
	renderPage(w, http.StatusOK, d)
}
