package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

// EventDispatcher is the interface the handler uses to queue batch scans.
type EventDispatcher interface {
	EnqueueBatch(batch []ports.RecordEventInput) error
}

// RecyclingHandler handles recycling scans.
type RecyclingHandler struct {
	ledger     ports.LedgerService
	dispatcher EventDispatcher
}

func NewRecyclingHandler(ledger ports.LedgerService, dispatcher EventDispatcher) *RecyclingHandler {
	return &RecyclingHandler{ledger: ledger, dispatcher: dispatcher}
}

// Record handles POST /v1/recycling: records one scan synchronously.
//
// @Summary      Record a recycling transaction
// @Tags         recycling
// @Accept       json
// @Produce      json
// @Param        body  body      recyclingRequest  true  "Scan"
// @Success      201   {object}  recordedResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/recycling [post]
func (h *RecyclingHandler) Record(c echo.Context) error {
	var req recyclingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ev, err := h.ledger.RecordEvent(c.Request().Context(), toRecordInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, recordedResponse{
		Message:     "Recycling transaction recorded.",
		Transaction: ev,
	})
}

// Get returns one recorded transaction. Events of deactivated users stay readable.
//
// @Summary      Get a recycling transaction
// @Tags         recycling
// @Produce      json
// @Param        id   path      string  true  "Transaction ID"
// @Success      200  {object}  domain.RecyclingEvent
// @Failure      404  {object}  errorResponse
// @Router       /v1/recycling/{id} [get]
func (h *RecyclingHandler) Get(c echo.Context) error {
	ev, err := h.ledger.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ev)
}

// ReceiveBatch handles POST /v1/recycling/batch: queues scans, returns 202.
// Scans for the same user are applied in the order given. A 503 means the
// dispatcher is shutting down and none of the batch was queued.
//
// @Summary      Queue a batch of recycling scans
// @Tags         recycling
// @Accept       json
// @Produce      json
// @Param        body  body      []recyclingRequest  true  "Array of scans"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/recycling/batch [post]
func (h *RecyclingHandler) ReceiveBatch(c echo.Context) error {
	var reqs []recyclingRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}
	if len(reqs) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("batch cannot exceed %d items", maxBatchSize))
	}

	inputs := make([]ports.RecordEventInput, 0, len(reqs))
	for i, req := range reqs {
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("item[%d]: %s", i, err.Error()))
		}
		inputs = append(inputs, toRecordInput(req))
	}

	if err := h.dispatcher.EnqueueBatch(inputs); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "ingestion is shutting down")
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "recycling scans accepted",
		Count:   len(inputs),
	})
}

func toRecordInput(r recyclingRequest) ports.RecordEventInput {
	return ports.RecordEventInput{
		UserID:   r.UserID,
		Material: r.Material,
		Quantity: r.Quantity,
	}
}
