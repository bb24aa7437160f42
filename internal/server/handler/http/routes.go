package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/middleware"
)

// NewRouter constructs the HTTP handler of the development backend.
//
// Routes:
//
//	POST  /register                  → authHandler.Register
//	POST  /login                     → authHandler.Login
//	POST  /logout                    → authHandler.Logout (bearer token)
//	GET   /me                        → accountHandler.Me (bearer token)
//	PATCH /me                        → accountHandler.UpdateMe (bearer token)
//	POST  /api/payment/create        → paymentHandler.Create (optional token)
//	GET   /api/payment/status/{id}   → paymentHandler.Status
//	GET   /api/payment/success       → paymentHandler.Success
//	GET   /api/payment/cancel        → paymentHandler.Cancel
//	GET   /pay/{id}                  → paymentHandler.Page
//
// Requests with a body must be application/json.
func NewRouter(
	authHandler *AuthHandler,
	accountHandler *AccountHandler,
	paymentHandler *PaymentHandler,
	tokens middleware.TokenResolver,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))

	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(tokens))
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", accountHandler.Me)
		r.Patch("/me", accountHandler.UpdateMe)
	})

	r.Route("/api/payment", func(r chi.Router) {
		r.With(middleware.OptionalBearerAuth(tokens)).Post("/create", paymentHandler.Create)
		r.Get("/status/{id}", paymentHandler.Status)
		r.Get("/success", paymentHandler.Success)
		r.Get("/cancel", paymentHandler.Cancel)
	})
	r.Get("/pay/{id}", paymentHandler.Page)

	return r
}
