package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iippk/PersonalWorks/internal/product"
)

// ProductsHandler serves the product directory, including the internal
// endpoints the order service calls to keep status and shipped in sync.
type ProductsHandler struct {
	Store product.Store
	Log   *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/product", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
		r.Get("/internal/{id}", h.getProduct)
		r.Put("/internal/{id}/status", h.setStatus)
		r.Put("/internal/{id}/shipped", h.setShipped)
	})
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	sellerID := strings.TrimSpace(r.Header.Get(HeaderStudentID))
	if sellerID == "" {
		writeFail(w, http.StatusBadRequest, "missing "+HeaderStudentID)
		return
	}
	var req product.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" || !req.Price.IsPositive() {
		writeFail(w, http.StatusBadRequest, "title and a positive price are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.Create(ctx, sellerID, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, p)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.Get(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, p)
}

func (h *ProductsHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, "status", product.ValidStatus, h.Store.SetStatus)
}

func (h *ProductsHandler) setShipped(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, "shipped", product.ValidShipped, h.Store.SetShipped)
}

func (h *ProductsHandler) set(w http.ResponseWriter, r *http.Request, param string, valid func(int) bool,
	fn func(context.Context, int64, int) error) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	v, err := strconv.Atoi(r.URL.Query().Get(param))
	if err != nil || !valid(v) {
		writeFail(w, http.StatusBadRequest, "invalid "+param)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := fn(ctx, id, v); err != nil {
		h.fail(w, err)
		return
	}
	writeOK(w, nil)
}

func (h *ProductsHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeFail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, product.ErrInvalidValue):
		writeFail(w, http.StatusBadRequest, err.Error())
	default:
		if h.Log != nil {
			h.Log.Error("product request failed", zap.Error(err))
		}
		writeFail(w, http.StatusInternalServerError, "internal error")
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}
