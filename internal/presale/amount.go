package presale

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NanoDecimals is the number of fractional digits a TON amount may carry.
const NanoDecimals = 9

var (
	ErrNotANumber = errors.New("not a number")
	ErrTooSmall   = errors.New("amount below minimum")
	ErrTooLarge   = errors.New("amount above maximum")
	ErrTooPrecise = errors.New("too many decimal places")
)

var amountRegex = regexp.MustCompile(`^\d*\.?\d*$`)

// ValidationError describes why a contribution amount was rejected.
// Error returns the message shown to the buyer.
type ValidationError struct {
	Kind   error
	Limit  decimal.Decimal
	Symbol string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrTooSmall:
		return fmt.Sprintf("Minimum purchase is %s %s", e.Limit.String(), e.Symbol)
	case ErrTooLarge:
		return fmt.Sprintf("Maximum purchase is %s %s", e.Limit.String(), e.Symbol)
	case ErrTooPrecise:
		return fmt.Sprintf("Amount supports at most %d decimal places", NanoDecimals)
	default:
		return "Please enter a valid amount"
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Terms are the fixed sale parameters: conversion rate and inclusive purchase bounds, in TON.
type Terms struct {
	Rate   decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
	Symbol string
}

// Quote is a validated contribution together with what it buys.
type Quote struct {
	TonAmount   decimal.Decimal `json:"tonAmount"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	NanoAmount  string          `json:"nanoAmount"`
}

// Convert returns the number of tokens bought for tonAmount.
func (t Terms) Convert(tonAmount decimal.Decimal) decimal.Decimal {
	return tonAmount.Mul(t.Rate)
}

// Validate parses user input and checks it against the purchase bounds.
func (t Terms) Validate(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, ",") {
		// "1,5" is a decimal comma; "1,000" reads as a thousands separator
		whole, frac, _ := strings.Cut(input, ",")
		if strings.ContainsAny(whole+frac, ".,") || len(frac) > 2 {
			return decimal.Zero, &ValidationError{Kind: ErrNotANumber}
		}
		input = whole + "." + frac
	}

	if !amountRegex.MatchString(input) || strings.Trim(input, ".") == "" {
		return decimal.Zero, &ValidationError{Kind: ErrNotANumber}
	}

	input = strings.TrimSuffix(input, ".")
	if strings.HasPrefix(input, ".") {
		input = "0" + input
	}

	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, &ValidationError{Kind: ErrNotANumber}
	}

	if err := t.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	return amount, nil
}

// ValidateAmount checks an already parsed amount.
func (t Terms) ValidateAmount(amount decimal.Decimal) error {
	switch {
	case amount.IsNegative():
		return &ValidationError{Kind: ErrNotANumber}
	case amount.LessThan(t.Min):
		return &ValidationError{Kind: ErrTooSmall, Limit: t.Min, Symbol: "TON"}
	case amount.GreaterThan(t.Max):
		return &ValidationError{Kind: ErrTooLarge, Limit: t.Max, Symbol: "TON"}
	case !amount.Shift(NanoDecimals).IsInteger():
		return &ValidationError{Kind: ErrTooPrecise}
	}
	return nil
}

// Quote validates input and prices it.
func (t Terms) Quote(input string) (*Quote, error) {
	amount, err := t.Validate(input)
	if err != nil {
		return nil, err
	}

	return &Quote{
		TonAmount:   amount,
		TokenAmount: t.Convert(amount),
		NanoAmount:  ToNano(amount).String(),
	}, nil
}

// ToNano converts TON to nanoTON, dropping anything below one nanoton.
func ToNano(tonAmount decimal.Decimal) decimal.Decimal {
	return tonAmount.Shift(NanoDecimals).Truncate(0)
}
