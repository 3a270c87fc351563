package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/agentstation/retailchain/internal/server/idempotency"
	"github.com/agentstation/retailchain/internal/server/response"
	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/logging"
)

// maxBodyBytes bounds product request bodies.
const maxBodyBytes = 1 << 20

// HandleListProducts handles GET /api/products.
// @Summary List products
// @Description List every product, seeding an empty catalog first
// @Tags products
// @Produce json
// @Success 200 {array} catalog.Product
// @Failure 500 {object} response.Error
// @Router /api/products [get].
func (h *Handlers) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		response.ErrorFromType(w, logging.FromContext(r.Context()), err)
		return
	}
	response.OK(w, products)
}

// HandleGetProduct handles GET /api/products/{id}.
// @Summary Get product
// @Tags products
// @Produce json
// @Param id path integer true "Product ID"
// @Success 200 {object} catalog.Product
// @Failure 404 {object} response.Error
// @Router /api/products/{id} [get].
func (h *Handlers) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	r, id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		response.ErrorFromType(w, logging.FromContext(r.Context()), err)
		return
	}
	response.OK(w, product)
}

// HandleCreateProduct handles POST /api/products.
// A repeated Idempotency-Key with the same body replays the first result.
// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replay protection key"
// @Success 201 {object} catalog.Product
// @Failure 400 {object} map[string]string
// @Failure 409 {object} response.Error
// @Failure 422 {object} response.Error
// @Router /api/products [post].
func (h *Handlers) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var candidate catalog.Product
	if !decode(w, body, &candidate) {
		return
	}

	key := r.Header.Get(idempotency.Header)
	fingerprint := idempotency.Fingerprint(body)
	if key != "" && h.idempotency != nil {
		status, rec := h.idempotency.Begin(key, fingerprint)
		switch status {
		case idempotency.Replay:
			response.Created(w, h.location(rec.Product.ID), rec.Product)
			return
		case idempotency.InFlight:
			response.Conflict(w, "A request with this Idempotency-Key is in progress")
			return
		case idempotency.Mismatch:
			response.UnprocessableEntity(w, "Idempotency-Key was already used with a different request body")
			return
		}
	}

	saved, err := h.service.CreateProduct(r.Context(), candidate)
	if err != nil {
		if key != "" && h.idempotency != nil {
			h.idempotency.Abandon(key)
		}
		response.ErrorFromType(w, logging.FromContext(r.Context()), err)
		return
	}
	if key != "" && h.idempotency != nil {
		h.idempotency.Complete(key, fingerprint, saved)
	}
	response.Created(w, h.location(saved.ID), saved)
}

// HandleUpdateProduct handles PUT /api/products/{id}.
// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path integer true "Product ID"
// @Success 200 {object} catalog.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} response.Error
// @Router /api/products/{id} [put].
func (h *Handlers) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	r, id, ok := productID(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var updated catalog.Product
	if !decode(w, body, &updated) {
		return
	}

	saved, err := h.service.UpdateProduct(r.Context(), id, updated)
	if err != nil {
		response.ErrorFromType(w, logging.FromContext(r.Context()), err)
		return
	}
	response.OK(w, saved)
}

// HandleDeleteProduct handles DELETE /api/products/{id}.
// @Summary Delete product
// @Tags products
// @Param id path integer true "Product ID"
// @Success 204
// @Failure 404 {object} response.Error
// @Router /api/products/{id} [delete].
func (h *Handlers) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	r, id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		response.ErrorFromType(w, logging.FromContext(r.Context()), err)
		return
	}
	response.NoContent(w)
}

func (h *Handlers) location(id int64) string {
	return h.prefix + "/products/" + strconv.FormatInt(id, 10)
}

// productID parses the {id} path value, writing 400 when it is not an
// integer. The returned request's logger carries the product id.
func productID(w http.ResponseWriter, r *http.Request) (*http.Request, int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid product id")
		return r, 0, false
	}
	return r.WithContext(logging.WithProduct(r.Context(), id)), id, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "Request body too large or unreadable")
		return nil, false
	}
	return body, true
}

func decode(w http.ResponseWriter, body []byte, v any) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		response.BadRequest(w, "Request body is required")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return false
	}
	return true
}
