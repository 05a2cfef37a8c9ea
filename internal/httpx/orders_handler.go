package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iippk/PersonalWorks/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// OrderCache is optional; a nil cache sends every read to the store.
// PutOrder must not replace a newer snapshot of the same order.
type OrderCache interface {
	GetOrder(ctx context.Context, id int64) (orders.Order, bool)
	PutOrder(ctx context.Context, o orders.Order) error
	ClaimCreate(ctx context.Context, buyerID, key string) (orderID int64, claimed bool, err error)
	CompleteCreate(ctx context.Context, buyerID, key string, orderID int64) error
	ReleaseCreate(ctx context.Context, buyerID, key string) error
}

type OrdersHandler struct {
	Service *orders.Service
	Cache   OrderCache
	Log     *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/order", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/my-buy", h.myBuy)
		r.Get("/my-sell", h.mySell)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}/{action}", h.transition)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json")
		return
	}
	p := principal(r)
	if p.ID == "" {
		writeFail(w, http.StatusBadRequest, "missing "+HeaderStudentID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if idemKey != "" && h.Cache != nil {
		id, claimed, err := h.Cache.ClaimCreate(ctx, p.ID, idemKey)
		switch {
		case err != nil:
			h.logger().Warn("idempotency claim failed, creating without it", zap.Error(err))
			idemKey = ""
		case !claimed && id > 0:
			o, err := h.Service.Get(ctx, id)
			if err != nil {
				h.fail(w, statusFor(err), err)
				return
			}
			writeOK(w, o)
			return
		case !claimed:
			writeFail(w, http.StatusConflict, "a request with this "+HeaderIdempotencyKey+" is still in progress")
			return
		}
	}

	o, err := h.Service.Create(ctx, p, req)
	if err != nil {
		if idemKey != "" && h.Cache != nil {
			if rerr := h.Cache.ReleaseCreate(ctx, p.ID, idemKey); rerr != nil {
				h.logger().Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		status := statusFor(err)
		if status == http.StatusNotFound {
			// a missing product is a bad create request, not a missing order
			status = http.StatusBadRequest
		}
		h.fail(w, status, err)
		return
	}

	if idemKey != "" && h.Cache != nil {
		if err := h.Cache.CompleteCreate(ctx, p.ID, idemKey, o.ID); err != nil {
			h.logger().Warn("idempotency store failed", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	h.cache(ctx, o)
	writeOK(w, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if o, ok := h.Cache.GetOrder(ctx, id); ok {
			writeOK(w, o)
			return
		}
	}
	o, err := h.Service.Get(ctx, id)
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	h.cache(ctx, o)
	writeOK(w, o)
}

func (h *OrdersHandler) myBuy(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListByBuyer)
}

func (h *OrdersHandler) mySell(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.ListBySeller)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) ([]orders.Order, error)) {
	p := principal(r)
	if p.ID == "" {
		writeFail(w, http.StatusBadRequest, "missing "+HeaderStudentID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := fn(ctx, p.ID)
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	writeOK(w, out)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	action := orders.Action(chi.URLParam(r, "action"))
	if !knownAction(action) {
		writeFail(w, http.StatusNotFound, "unknown order action")
		return
	}
	p := principal(r)
	if p.ID == "" {
		writeFail(w, http.StatusBadRequest, "missing "+HeaderStudentID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.Apply(ctx, action, id, p.ID)
	if err != nil {
		h.fail(w, statusFor(err), err)
		return
	}
	h.cache(ctx, o)
	writeOK(w, o)
}

func (h *OrdersHandler) cache(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.PutOrder(ctx, o); err != nil {
		h.logger().Warn("order cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) fail(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger().Error("order request failed", zap.Error(err))
		msg = "internal error"
	}
	writeFail(w, status, msg)
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func knownAction(a orders.Action) bool {
	for _, known := range orders.Actions() {
		if a == known {
			return true
		}
	}
	return false
}
