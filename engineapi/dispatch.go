package engineapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gavelworks/gavel/core"
)

// Dispatcher decodes a raw request on its type discriminator, runs it
// against the engine, and shapes the reply envelope.
type Dispatcher struct {
	Engine *core.Engine
	Clock  core.Clock
}

// NewDispatcher wires a dispatcher around an engine.
func NewDispatcher(engine *core.Engine) *Dispatcher {
	return &Dispatcher{Engine: engine, Clock: core.SystemClock{}}
}

// Handle processes one raw JSON request and always returns a Response.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) Response {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return failure("error", "validation", fmt.Sprintf("decode request: %v", err))
	}

	switch base.Type {
	case TypePing:
		return success(TypePing, PingData{Message: "auction engine is healthy", Timestamp: d.Clock.Now().Unix()})
	case TypeCreateLot:
		return d.createLot(ctx, raw)
	case TypeEditLot:
		return d.editLot(ctx, raw)
	case TypeDeleteLot:
		return d.deleteLot(ctx, raw)
	case TypePlaceBid:
		return d.placeBid(ctx, raw)
	case TypeExtendLot:
		return d.extendLot(ctx, raw)
	case TypeSettleLot:
		return d.settleLot(ctx, raw)
	case TypeReclaimPending:
		return d.reclaimPending(ctx, raw)
	case TypeWithdrawFees:
		return d.withdrawFees(ctx, raw)
	case TypeSetFeeRate:
		return d.setFeeRate(ctx, raw)
	case TypeWhitelistCurrency, TypeRemoveCurrency:
		return d.changeCurrency(ctx, base.Type, raw)
	case TypeSetMinDelta:
		return d.setMinDelta(ctx, raw)
	case TypeGetLot:
		return d.getLot(ctx, raw)
	case TypeOpenLots:
		return d.openLots(ctx)
	case TypePendingPayment:
		return d.pendingPayment(ctx, raw)
	case TypeCollectedFees:
		return d.collectedFees(ctx, raw)
	case TypeIsWhitelisted:
		return d.isWhitelisted(ctx, raw)
	default:
		return failure("error", "validation", fmt.Sprintf("unknown request type: %s", base.Type))
	}
}

func (d *Dispatcher) createLot(ctx context.Context, raw []byte) Response {
	var req CreateLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeCreateLot, err)
	}
	buyNow, err := parseAmount(req.BuyNowPrice)
	if err != nil {
		return parseFailure(TypeCreateLot, "buy_now_price", err)
	}
	start, err := parseAmount(req.StartPrice)
	if err != nil {
		return parseFailure(TypeCreateLot, "start_price", err)
	}
	delta, err := parseAmount(req.MinBidDelta)
	if err != nil {
		return parseFailure(TypeCreateLot, "min_bid_delta", err)
	}
	id, err := d.Engine.CreateLot(ctx, core.Address(req.Caller), core.CreateLotParams{
		Asset:           core.AssetRef{Contract: core.Address(req.Asset.Contract), TokenID: req.Asset.TokenID},
		Quantity:        req.Quantity,
		PaymentCurrency: ParseCurrency(req.Currency),
		BuyNowPrice:     buyNow,
		StartPrice:      start,
		StartOffset:     time.Duration(req.StartOffsetSec) * time.Second,
		EndOffset:       time.Duration(req.EndOffsetSec) * time.Second,
		MinBidDelta:     delta,
	})
	if err != nil {
		return engineFailure(TypeCreateLot, err)
	}
	return success(TypeCreateLot, CreateLotData{LotID: id})
}

func (d *Dispatcher) editLot(ctx context.Context, raw []byte) Response {
	var req EditLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeEditLot, err)
	}
	// Omitted fields keep the lot's current values; only what the request
	// carries is diffed by the engine.
	lot, err := d.Engine.GetLot(ctx, req.LotID)
	if err != nil {
		return engineFailure(TypeEditLot, err)
	}
	params := core.EditLotParams{
		BuyNowPrice: lot.BuyNowPrice,
		StartPrice:  lot.StartPrice,
		StartTime:   lot.StartTime,
		EndTime:     lot.EndTime,
		MinBidDelta: lot.MinBidDelta,
	}
	if req.BuyNowPrice != "" {
		if params.BuyNowPrice, err = parseAmount(req.BuyNowPrice); err != nil {
			return parseFailure(TypeEditLot, "buy_now_price", err)
		}
	}
	if req.StartPrice != "" {
		if params.StartPrice, err = parseAmount(req.StartPrice); err != nil {
			return parseFailure(TypeEditLot, "start_price", err)
		}
	}
	if req.MinBidDelta != "" {
		if params.MinBidDelta, err = parseAmount(req.MinBidDelta); err != nil {
			return parseFailure(TypeEditLot, "min_bid_delta", err)
		}
	}
	if req.StartTime != 0 {
		params.StartTime = ParseUnix(req.StartTime)
	}
	if req.EndTime != 0 {
		params.EndTime = ParseUnix(req.EndTime)
	}
	if err := d.Engine.EditLot(ctx, core.Address(req.Caller), req.LotID, params); err != nil {
		return engineFailure(TypeEditLot, err)
	}
	return success(TypeEditLot, nil)
}

func (d *Dispatcher) deleteLot(ctx context.Context, raw []byte) Response {
	var req DeleteLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeDeleteLot, err)
	}
	if err := d.Engine.DeleteLot(ctx, core.Address(req.Caller), req.LotID); err != nil {
		return engineFailure(TypeDeleteLot, err)
	}
	return success(TypeDeleteLot, nil)
}

func (d *Dispatcher) placeBid(ctx context.Context, raw []byte) Response {
	var req PlaceBidRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypePlaceBid, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return parseFailure(TypePlaceBid, "amount", err)
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		return parseFailure(TypePlaceBid, "value", err)
	}
	if err := d.Engine.PlaceBid(ctx, core.Address(req.Caller), req.LotID, amount, value); err != nil {
		return engineFailure(TypePlaceBid, err)
	}
	return success(TypePlaceBid, nil)
}

func (d *Dispatcher) extendLot(ctx context.Context, raw []byte) Response {
	var req ExtendLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeExtendLot, err)
	}
	if err := d.Engine.Extend(ctx, core.Address(req.Caller), req.LotID, ParseUnix(req.NewEndTime)); err != nil {
		return engineFailure(TypeExtendLot, err)
	}
	return success(TypeExtendLot, nil)
}

func (d *Dispatcher) settleLot(ctx context.Context, raw []byte) Response {
	var req SettleLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeSettleLot, err)
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		return parseFailure(TypeSettleLot, "value", err)
	}
	if err := d.Engine.Settle(ctx, core.Address(req.Caller), req.LotID, value); err != nil {
		return engineFailure(TypeSettleLot, err)
	}
	return success(TypeSettleLot, nil)
}

func (d *Dispatcher) reclaimPending(ctx context.Context, raw []byte) Response {
	var req ReclaimPendingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeReclaimPending, err)
	}
	err := d.Engine.ReclaimPending(ctx, core.Address(req.Caller), req.LotID,
		core.Address(req.Payee), core.Address(req.Destination))
	if err != nil {
		return engineFailure(TypeReclaimPending, err)
	}
	return success(TypeReclaimPending, nil)
}

func (d *Dispatcher) withdrawFees(ctx context.Context, raw []byte) Response {
	var req WithdrawFeesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeWithdrawFees, err)
	}
	err := d.Engine.WithdrawFees(ctx, core.Address(req.Caller),
		ParseCurrency(req.Currency), core.Address(req.Destination))
	if err != nil {
		return engineFailure(TypeWithdrawFees, err)
	}
	return success(TypeWithdrawFees, nil)
}

func (d *Dispatcher) setFeeRate(ctx context.Context, raw []byte) Response {
	var req SetFeeRateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeSetFeeRate, err)
	}
	if err := d.Engine.SetFeeRate(ctx, core.Address(req.Caller), req.RateBps); err != nil {
		return engineFailure(TypeSetFeeRate, err)
	}
	return success(TypeSetFeeRate, nil)
}

func (d *Dispatcher) changeCurrency(ctx context.Context, reqType string, raw []byte) Response {
	var req CurrencyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(reqType, err)
	}
	var err error
	if reqType == TypeWhitelistCurrency {
		err = d.Engine.WhitelistCurrency(ctx, core.Address(req.Caller), ParseCurrency(req.Currency))
	} else {
		err = d.Engine.RemoveCurrency(ctx, core.Address(req.Caller), ParseCurrency(req.Currency))
	}
	if err != nil {
		return engineFailure(reqType, err)
	}
	return success(reqType, nil)
}

func (d *Dispatcher) setMinDelta(ctx context.Context, raw []byte) Response {
	var req SetMinDeltaRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeSetMinDelta, err)
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		return parseFailure(TypeSetMinDelta, "value", err)
	}
	if err := d.Engine.SetMinDelta(ctx, core.Address(req.Caller), value); err != nil {
		return engineFailure(TypeSetMinDelta, err)
	}
	return success(TypeSetMinDelta, nil)
}

func (d *Dispatcher) getLot(ctx context.Context, raw []byte) Response {
	var req GetLotRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeGetLot, err)
	}
	lot, err := d.Engine.GetLot(ctx, req.LotID)
	if err != nil {
		return engineFailure(TypeGetLot, err)
	}
	return success(TypeGetLot, LotFromCore(lot))
}

func (d *Dispatcher) openLots(ctx context.Context) Response {
	lots, err := d.Engine.OpenLots(ctx)
	if err != nil {
		return engineFailure(TypeOpenLots, err)
	}
	bodies := make([]LotBody, 0, len(lots))
	for _, lot := range lots {
		bodies = append(bodies, LotFromCore(lot))
	}
	return success(TypeOpenLots, bodies)
}

func (d *Dispatcher) pendingPayment(ctx context.Context, raw []byte) Response {
	var req PendingPaymentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypePendingPayment, err)
	}
	amount, err := d.Engine.PendingPayment(ctx, core.Address(req.Payee), req.LotID)
	if err != nil {
		return engineFailure(TypePendingPayment, err)
	}
	return success(TypePendingPayment, AmountData{Amount: amount.String()})
}

func (d *Dispatcher) collectedFees(ctx context.Context, raw []byte) Response {
	var req CollectedFeesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeCollectedFees, err)
	}
	amount, err := d.Engine.CollectedFees(ctx, ParseCurrency(req.Currency))
	if err != nil {
		return engineFailure(TypeCollectedFees, err)
	}
	return success(TypeCollectedFees, AmountData{Amount: amount.String()})
}

func (d *Dispatcher) isWhitelisted(ctx context.Context, raw []byte) Response {
	var req IsWhitelistedRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return decodeFailure(TypeIsWhitelisted, err)
	}
	listed, err := d.Engine.IsWhitelisted(ctx, ParseCurrency(req.Currency))
	if err != nil {
		return engineFailure(TypeIsWhitelisted, err)
	}
	return success(TypeIsWhitelisted, WhitelistedData{Currency: req.Currency, Whitelisted: listed})
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func success(reqType string, data any) Response {
	return Response{Type: reqType + "_response", Success: true, Data: data}
}

func failure(reqType, kind, message string) Response {
	return Response{
		Type:    reqType + "_response",
		Success: false,
		Error:   &ErrorBody{Kind: kind, Message: message},
	}
}

func decodeFailure(reqType string, err error) Response {
	return failure(reqType, "validation", fmt.Sprintf("decode request: %v", err))
}

func parseFailure(reqType, field string, err error) Response {
	return failure(reqType, "validation", fmt.Sprintf("parse %s: %v", field, err))
}

func engineFailure(reqType string, err error) Response {
	return failure(reqType, core.KindOf(err).String(), err.Error())
}
