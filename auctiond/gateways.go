package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/gavelworks/gavel/core"
)

// allowListAuth grants admin rights to the addresses named in the
// daemon's configuration. The fronting host authenticates callers, so an
// address in the list is taken at face value.
type allowListAuth struct {
	admins map[core.Address]struct{}
}

func newAllowListAuth(admins []string) *allowListAuth {
	set := make(map[core.Address]struct{}, len(admins))
	for _, a := range admins {
		if a != "" {
			set[core.Address(a)] = struct{}{}
		}
	}
	return &allowListAuth{admins: set}
}

func (a *allowListAuth) IsAdmin(ctx context.Context, caller core.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := a.admins[caller]
	return ok, nil
}

// hostAssets is the in-process asset gateway: a registry of asset
// ownership fed by the host. The first party to list an asset is recorded
// as its owner; settlement moves ownership to the winner.
type hostAssets struct {
	mu     sync.Mutex
	owners map[core.AssetRef]core.Address
	log    zerolog.Logger
}

func newHostAssets(log zerolog.Logger) *hostAssets {
	return &hostAssets{owners: make(map[core.AssetRef]core.Address), log: log}
}

func (h *hostAssets) IsAuthorized(ctx context.Context, owner, operator core.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return owner != "" && operator != "", nil
}

func (h *hostAssets) AssetClass(ctx context.Context, asset core.AssetRef) (core.AssetClass, error) {
	if err := ctx.Err(); err != nil {
		return core.AssetClassUnknown, err
	}
	return core.AssetClassUnit, nil
}

func (h *hostAssets) SupportsRoyalty(ctx context.Context, asset core.AssetRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}

func (h *hostAssets) Transfer(ctx context.Context, from, to core.Address, asset core.AssetRef, quantity uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.owners[asset] = to
	h.log.Info().
		Str("contract", string(asset.Contract)).
		Uint64("token", asset.TokenID).
		Str("from", string(from)).Str("to", string(to)).
		Uint64("quantity", quantity).
		Msg("asset transferred")
	return nil
}

// hostPayments is the in-process payment gateway. Balances exist on the
// host's rails; the daemon only records the movements it orders, so pulls
// and pushes always succeed here.
type hostPayments struct {
	log zerolog.Logger
}

func (h hostPayments) Pull(ctx context.Context, payer core.Address, amount decimal.Decimal, currency core.Currency) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	h.log.Debug().
		Str("payer", string(payer)).
		Str("amount", amount.String()).
		Msg("payment pulled")
	return amount, nil
}

func (h hostPayments) Push(ctx context.Context, payee core.Address, amount decimal.Decimal, currency core.Currency) bool {
	if ctx.Err() != nil {
		return false
	}
	h.log.Debug().
		Str("payee", string(payee)).
		Str("amount", amount.String()).
		Msg("payment pushed")
	return true
}

// noRoyalty is the oracle for deployments whose assets carry no
// rights-holder obligations.
type noRoyalty struct{}

func (noRoyalty) RoyaltyInfo(ctx context.Context, asset core.AssetRef, salePrice decimal.Decimal) (core.Address, decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return "", decimal.Zero, err
	}
	return "", decimal.Zero, nil
}
