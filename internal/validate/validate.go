// Package validate implements the order-entry admission checks createOrder
// runs before a row ever reaches the Order Store (spec §6): symbol
// existence/active-state, tick/step-size conformance and struct-level
// field validation.
//
// Grounded on internal/validation.Validator's go-playground/validator/v10
// wrapper, with the symbol lookup cached the way
// internal/orders/service_core.go caches hot lookups via patrickmn/go-cache.
package validate

import (
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/vantra-labs/matchcore/internal/domain"
	coreerrors "github.com/vantra-labs/matchcore/internal/errors"
)

const (
	symbolCacheExpiration = 5 * time.Minute
	symbolCacheCleanup    = 10 * time.Minute
)

// SymbolConstraint is the tick/step-size admission rule for one symbol
// (spec §6 "quantity and price conform to symbol constraints").
type SymbolConstraint struct {
	Symbol   string
	Active   bool
	TickSize decimal.Decimal // minimum price increment
	StepSize decimal.Decimal // minimum quantity increment
	MinPrice decimal.Decimal
	MinQty   decimal.Decimal
}

// SymbolLookup resolves a symbol's current constraints. The concrete
// implementation may read from a reference-data collaborator; admission
// validation does not own that data.
type SymbolLookup func(symbol string) (*SymbolConstraint, bool)

// OrderInput is the struct-validated shape of a createOrder request.
type OrderInput struct {
	UserID   string          `validate:"required"`
	Symbol   string          `validate:"required"`
	Side     domain.Side     `validate:"required,oneof=BUY SELL"`
	Type     domain.Type     `validate:"required,oneof=LIMIT MARKET"`
	Price    decimal.Decimal `validate:"required"`
	Quantity decimal.Decimal `validate:"required"`
}

// Validator admits or rejects inbound orders.
type Validator struct {
	v      *validator.Validate
	lookup SymbolLookup
	cache  *cache.Cache
}

// New builds a Validator backed by lookup for symbol constraints.
func New(lookup SymbolLookup) *Validator {
	return &Validator{
		v:      validator.New(),
		lookup: lookup,
		cache:  cache.New(symbolCacheExpiration, symbolCacheCleanup),
	}
}

// Validate runs struct-level checks then symbol/tick/step-size checks on
// in. Returns a *errors.MatchCoreError with a ValidationError-family code
// on the first failure (spec §6: a rejected order still persists with
// status=REJECTED — Validate only decides whether that happens).
func (val *Validator) Validate(in OrderInput) error {
	if err := val.v.Struct(in); err != nil {
		return coreerrors.Wrap(err, coreerrors.ErrValidationFailed, formatFieldErrors(err))
	}

	if in.Price.LessThanOrEqual(decimal.Zero) && in.Type == domain.TypeLimit {
		return coreerrors.New(coreerrors.ErrInvalidPrice, "price must be positive for a LIMIT order")
	}
	if in.Quantity.LessThanOrEqual(decimal.Zero) {
		return coreerrors.New(coreerrors.ErrInvalidQuantity, "quantity must be positive")
	}

	constraint, err := val.resolveSymbol(in.Symbol)
	if err != nil {
		return err
	}

	if in.Type == domain.TypeLimit {
		if !constraint.MinPrice.IsZero() && in.Price.LessThan(constraint.MinPrice) {
			return coreerrors.Newf(coreerrors.ErrInvalidPrice, "price below minimum %s for %s", constraint.MinPrice, in.Symbol)
		}
		if !constraint.TickSize.IsZero() && !remainderIsZero(in.Price, constraint.TickSize) {
			return coreerrors.Newf(coreerrors.ErrInvalidPrice, "price does not conform to tick size %s for %s", constraint.TickSize, in.Symbol)
		}
	}

	if !constraint.MinQty.IsZero() && in.Quantity.LessThan(constraint.MinQty) {
		return coreerrors.Newf(coreerrors.ErrInvalidQuantity, "quantity below minimum %s for %s", constraint.MinQty, in.Symbol)
	}
	if !constraint.StepSize.IsZero() && !remainderIsZero(in.Quantity, constraint.StepSize) {
		return coreerrors.Newf(coreerrors.ErrInvalidQuantity, "quantity does not conform to step size %s for %s", constraint.StepSize, in.Symbol)
	}

	return nil
}

func (val *Validator) resolveSymbol(symbol string) (*SymbolConstraint, error) {
	if cached, ok := val.cache.Get(symbol); ok {
		return cached.(*SymbolConstraint), nil
	}

	constraint, ok := val.lookup(symbol)
	if !ok {
		return nil, coreerrors.Newf(coreerrors.ErrSymbolNotFound, "symbol %s not found", symbol)
	}
	if !constraint.Active {
		return nil, coreerrors.Newf(coreerrors.ErrSymbolNotFound, "symbol %s is not active", symbol)
	}

	val.cache.Set(symbol, constraint, cache.DefaultExpiration)
	return constraint, nil
}

// remainderIsZero reports whether value is an exact multiple of step.
func remainderIsZero(value, step decimal.Decimal) bool {
	if step.IsZero() {
		return true
	}
	return value.Div(step).Mod(decimal.NewFromInt(1)).IsZero()
}

func formatFieldErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
	}
	return strings.Join(messages, "; ")
}
