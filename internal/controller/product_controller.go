package controller

import (
	"net/http"

	"github.com/cassiomorais/storefront/internal/service"
)

type ProductController struct {
	products *service.ProductService
}

func NewProductController(products *service.ProductService) *ProductController {
	return &ProductController{products: products}
}

func (h *ProductController) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.products.List(r.Context()))
}

func (h *ProductController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProductController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.products.Create(r.Context(), req.attributes())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/products/"+out.Entity.ID.String())
	writeMutation(w, http.StatusCreated, out.Entity, out.PublishErr)
}

func (h *ProductController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.products.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, err)
		return
	}

	writeMutation(w, http.StatusOK, out.Entity, out.PublishErr)
}

func (h *ProductController) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	out, err := h.products.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeMutation(w, http.StatusNoContent, nil, out.PublishErr)
}
