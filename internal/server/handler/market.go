package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/panel/market"
	"github.com/alanyoungcy/marketfund/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, address string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	SyncMarket(ctx context.Context, req service.SyncRequest) (domain.Market, error)
	MarketMakerData(ctx context.Context, m domain.Market, account string) (domain.MarketMakerData, error)
}

// StatusSource reports the funding action status of a market.
type StatusSource interface {
	Status(address string) domain.Status
}

// MarketHandler serves the market list, the market view panel and market
// metadata sync.
type MarketHandler struct {
	markets  MarketService
	status   StatusSource
	conn     domain.Connection
	features market.Features
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, status StatusSource, conn domain.Connection, features market.Features, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:  markets,
		status:   status,
		conn:     conn,
		features: features,
		logger:   logHandler(logger, "market"),
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns stored markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list markets")
		return
	}
	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to count markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// marketViewResponse carries the market metadata and the panel's render model.
type marketViewResponse struct {
	Market domain.Market `json:"market"`
	View   market.View   `json:"view"`
}

func (h *MarketHandler) panel(ctx context.Context, address string) (domain.Market, *market.Panel, error) {
	m, err := h.markets.GetMarket(ctx, address)
	if err != nil {
		return domain.Market{}, nil, err
	}
	account := h.conn.Account()
	data, err := h.markets.MarketMakerData(ctx, m, account)
	if err != nil {
		return domain.Market{}, nil, err
	}
	return m, market.New(market.Props{
		Account:            account,
		Collateral:         m.Collateral,
		MarketMakerData:    data,
		Status:             h.status.Status(m.Address),
		MarketMakerAddress: m.Address,
		Question:           m.Question,
	}, h.features), nil
}

// GetMarket renders the market view panel.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, p, err := h.panel(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, marketViewResponse{Market: m, View: p.Render()})
}

type outcomeRequest struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	Probability  float64 `json:"probability"`
	CurrentPrice float64 `json:"current_price"`
}

// syncMarketRequest is the body of PUT /api/markets/{address}. Holdings are
// the connected account's outcome shares keyed by outcome index, as base-10
// integers.
type syncMarketRequest struct {
	Question   string            `json:"question"`
	Resolution *time.Time        `json:"resolution"`
	Collateral string            `json:"collateral"`
	Outcomes   []outcomeRequest  `json:"outcomes"`
	Holdings   map[string]string `json:"holdings"`
}

func (req syncMarketRequest) toSync(address, account string) (service.SyncRequest, error) {
	out := service.SyncRequest{
		Address:    address,
		Question:   req.Question,
		Resolution: req.Resolution,
		Collateral: req.Collateral,
		Account:    account,
	}
	for _, o := range req.Outcomes {
		out.Outcomes = append(out.Outcomes, domain.Outcome{
			Index:        o.Index,
			Name:         o.Name,
			Probability:  o.Probability,
			CurrentPrice: o.CurrentPrice,
		})
	}
	if req.Holdings != nil {
		out.Holdings = make(map[int]*big.Int, len(req.Holdings))
		for k, v := range req.Holdings {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return service.SyncRequest{}, fmt.Errorf("%w: holdings key %q", domain.ErrInvalidMarket, k)
			}
			shares, ok := new(big.Int).SetString(v, 10)
			if !ok || shares.Sign() < 0 {
				return service.SyncRequest{}, fmt.Errorf("%w: holdings[%s] = %q", domain.ErrInvalidAmount, k, v)
			}
			out.Holdings[idx] = shares
		}
	}
	return out, nil
}

// SyncMarket registers or updates market metadata.
// PUT /api/markets/{address}
func (h *MarketHandler) SyncMarket(w http.ResponseWriter, r *http.Request) {
	var body syncMarketRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toSync(pathParam(r, "address"), h.conn.Account())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.markets.SyncMarket(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to sync market")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type navigateRequest struct {
	Action string `json:"action"`
}

// Navigate resolves the route of a market view button.
// POST /api/markets/{address}/navigate
func (h *MarketHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var body navigateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, p, err := h.panel(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get market")
		return
	}
	route, err := p.Navigate(market.Action(body.Action))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to navigate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"route": route})
}
