package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/middleware"
	"github.com/vyrodovalexey/cors-demo/internal/model"
	"github.com/vyrodovalexey/cors-demo/internal/store"
)

// EventPublisher receives an event after every successful mutation.
type EventPublisher interface {
	Publish(event model.ItemEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.ItemEvent) {}

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	store  store.Store
	cors   *middleware.CORSPolicy
	events EventPublisher
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance. events may be nil.
func NewRESTHandler(
	s store.Store,
	cors *middleware.CORSPolicy,
	events EventPublisher,
	logger *zap.Logger,
) *RESTHandler {
	if events == nil {
		events = nopPublisher{}
	}

	return &RESTHandler{
		store:  s,
		cors:   cors,
		events: events,
		logger: logger,
	}
}

// RegisterRoutes registers the item routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	registerResource(router, h.cors, PathItems,
		endpoint{http.MethodGet, h.ListItems},
		endpoint{http.MethodPost, h.CreateItem},
	)
	registerResource(router, h.cors, PathItem,
		endpoint{http.MethodGet, h.GetItem},
		endpoint{http.MethodPut, h.UpdateItem},
		endpoint{http.MethodDelete, h.DeleteItem},
	)
}

// ListItems handles GET /api/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "list items")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.ItemList{Items: items})
}

// GetItem handles GET /api/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, item)
}

// CreateItem handles POST /api/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidNewItem)
		return
	}

	input, err := model.DecodeNewItem(body)
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidNewItem)
		return
	}

	item, err := h.store.Create(ctx, input)
	if err != nil {
		h.handleStoreError(w, err, "create item")
		return
	}

	h.afterMutation(ctx, model.EventItemCreated, *item)
	writeJSON(w, h.logger, http.StatusCreated, item)
}

// UpdateItem handles PUT /api/items/{id} requests.
func (h *RESTHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidItem)
		return
	}

	patch, err := model.DecodeItemPatch(body)
	if err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidItem)
		return
	}

	item, err := h.store.Update(ctx, id, patch)
	if err != nil {
		h.handleStoreError(w, err, "update item")
		return
	}

	h.afterMutation(ctx, model.EventItemUpdated, *item)
	writeJSON(w, h.logger, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/items/{id} requests.
func (h *RESTHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.store.Delete(ctx, id)
	if err != nil {
		h.handleStoreError(w, err, "delete item")
		return
	}

	h.afterMutation(ctx, model.EventItemDeleted, *item)
	writeJSON(w, h.logger, http.StatusOK, item)
}

// itemID parses the {id} path variable. The route only matches digits,
// so a failure here is an id too large for int and cannot exist.
func (h *RESTHandler) itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, model.MsgItemNotFound)
		return 0, false
	}
	return id, true
}

// afterMutation publishes the item event and refreshes the item gauge.
func (h *RESTHandler) afterMutation(ctx context.Context, eventType string, item model.Item) {
	h.events.Publish(model.NewItemEvent(eventType, item))
	itemEventsPublished.WithLabelValues(eventType).Inc()
	h.RefreshItemCount(ctx)
}

// RefreshItemCount sets the items_stored gauge from the store.
func (h *RESTHandler) RefreshItemCount(ctx context.Context) {
	n, err := h.store.Len(ctx)
	if err != nil {
		h.logger.Debug("failed to count items", zap.Error(err))
		return
	}
	itemsStored.Set(float64(n))
}

// handleStoreError maps store errors to HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, model.MsgItemNotFound)
	case errors.Is(err, store.ErrNilItem):
		writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidItem)
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, model.MsgInternalError)
	}
}
