package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/exchangecore/internal/service"
)

// Services bundles the application services the router exposes.
type Services struct {
	Accounts *service.AccountService
	Orders   *service.OrderService
	Market   *service.MarketService
	Webhooks *service.WebhookService
}

// Options carries the optional non-JSON endpoints. Nil handlers are not
// mounted.
type Options struct {
	Feed    http.Handler // GET /ws
	Metrics http.Handler // GET /metrics
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(svc Services, opts Options, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	clientH := NewClientHandler(svc.Accounts, svc.Orders)
	orderH := NewOrderHandler(svc.Orders)
	instrumentH := NewInstrumentHandler(svc.Market)
	webhookH := NewWebhookHandler(svc.Webhooks)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Feed != nil {
		r.Method(http.MethodGet, "/ws", opts.Feed)
	}

	r.Post("/clients", clientH.Register)
	r.Route("/clients/{client}", func(r chi.Router) {
		r.Get("/balance", clientH.GetBalance)
		r.Get("/portfolio", clientH.GetPortfolio)
		r.Get("/orders", clientH.ListOrders)
		r.Post("/deposits", clientH.Deposit)
		r.Post("/withdrawals", clientH.Withdraw)
	})

	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Patch("/orders/{order_id}", orderH.EditOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	r.Route("/instruments/{ticker}", func(r chi.Router) {
		r.Get("/price", instrumentH.GetPrice)
		r.Get("/last", instrumentH.GetLast)
		r.Get("/pnl", instrumentH.GetPnL)
		r.Get("/best", instrumentH.GetBest)
		r.Get("/book", instrumentH.GetBook)
		r.Get("/volume", instrumentH.GetVolume)
		r.Get("/quote", instrumentH.GetQuote)
	})

	r.Post("/webhooks", webhookH.Upsert)
	r.Get("/webhooks", webhookH.List)
	r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// contentTypeJSON rejects POST, PUT and PATCH requests whose Content-Type
// is not application/json.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
