package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/fund"
)

// FundingService defines what the funding panel endpoints need from the
// service layer.
type FundingService interface {
	View(ctx context.Context, address string) (fund.View, error)
	SetAmount(ctx context.Context, address, text string) (fund.View, error)
	UseMax(ctx context.Context, address string) (fund.View, error)
	AddFunding(ctx context.Context, address string) (string, error)
	RemoveFunding(ctx context.Context, address string) (string, error)
	History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.FundingAction, error)
}

// FundHandler serves the funding panel of a market.
type FundHandler struct {
	funding FundingService
	logger  *slog.Logger
}

// NewFundHandler creates a FundHandler.
func NewFundHandler(funding FundingService, logger *slog.Logger) *FundHandler {
	return &FundHandler{funding: funding, logger: logHandler(logger, "fund")}
}

// GetFund renders the funding panel.
// GET /api/markets/{address}/fund
func (h *FundHandler) GetFund(w http.ResponseWriter, r *http.Request) {
	v, err := h.funding.View(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to render funding panel")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// amountErrorResponse returns the field error together with the unchanged
// panel so clients can repaint.
type amountErrorResponse struct {
	Error string    `json:"error"`
	View  fund.View `json:"view"`
}

// SetAmount updates the amount field from decimal text.
// PUT /api/markets/{address}/fund/amount
func (h *FundHandler) SetAmount(w http.ResponseWriter, r *http.Request) {
	var body amountRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.funding.SetAmount(r.Context(), pathParam(r, "address"), body.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeJSON(w, http.StatusBadRequest, amountErrorResponse{Error: err.Error(), View: v})
			return
		}
		writeServiceError(w, r, h.logger, err, "failed to set amount")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// UseMax copies the collateral balance into the amount field.
// POST /api/markets/{address}/fund/max
func (h *FundHandler) UseMax(w http.ResponseWriter, r *http.Request) {
	v, err := h.funding.UseMax(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to use max")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type actionResponse struct {
	ActionID string    `json:"action_id"`
	View     fund.View `json:"view"`
}

func (h *FundHandler) start(w http.ResponseWriter, r *http.Request, run func(context.Context, string) (string, error)) {
	address := pathParam(r, "address")
	id, err := run(r.Context(), address)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to start funding action")
		return
	}
	v, err := h.funding.View(r.Context(), address)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to render funding panel")
		return
	}
	writeJSON(w, http.StatusAccepted, actionResponse{ActionID: id, View: v})
}

// AddFunding starts adding the entered amount. The action completes in the
// background; progress is visible in the panel and on the funding channel.
// POST /api/markets/{address}/fund/add
func (h *FundHandler) AddFunding(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.funding.AddFunding)
}

// RemoveFunding starts removing all of the account's funding.
// POST /api/markets/{address}/fund/remove
func (h *FundHandler) RemoveFunding(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.funding.RemoveFunding)
}

// History lists the funding ledger of the market.
// GET /api/markets/{address}/fund/history?limit=50&offset=0
func (h *FundHandler) History(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	actions, err := h.funding.History(r.Context(), pathParam(r, "address"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list funding history")
		return
	}
	if actions == nil {
		actions = []domain.FundingAction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
