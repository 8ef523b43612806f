package controller

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/service"
	"github.com/google/uuid"
)

type OrderController struct {
	orders *service.OrderService
}

func NewOrderController(orders *service.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

func (h *OrderController) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FromOrders(h.orders.List(r.Context())))
}

func (h *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

func (h *OrderController) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, FromOrders(h.orders.ListByCustomer(r.Context(), customerID)))
}

func (h *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.orders.Create(r.Context(), uuid.MustParse(req.CustomerID), toItemInputs(req.Items))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/orders/"+out.Entity.ID.String())
	writeMutation(w, http.StatusCreated, FromOrder(out.Entity), out.PublishErr)
}

func (h *OrderController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.orders.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, err)
		return
	}

	writeMutation(w, http.StatusOK, FromOrder(out.Entity), out.PublishErr)
}

func (h *OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	out, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeMutation(w, http.StatusOK, FromOrder(out.Entity), out.PublishErr)
}
