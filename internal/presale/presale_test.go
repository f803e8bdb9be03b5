package presale

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTerms() Terms {
	return Terms{
		Rate:   decimal.NewFromInt(7500),
		Min:    decimal.RequireFromString("0.2"),
		Max:    decimal.NewFromInt(1000),
		Symbol: "TGOLD",
	}
}

func TestConvert(t *testing.T) {
	terms := testTerms()

	tests := []struct {
		ton  string
		want string
	}{
		{"10", "75000"},
		{"0.2", "1500"},
		{"1000", "7500000"},
		{"15.5", "116250"},
		{"0.123456789", "925.9259175"},
	}

	for _, tt := range tests {
		got := terms.Convert(decimal.RequireFromString(tt.ton))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s TON -> %s, want %s", tt.ton, got, tt.want)
	}
}

func TestValidate(t *testing.T) {
	terms := testTerms()

	t.Run("accepted", func(t *testing.T) {
		for _, in := range []string{"0.2", "10", "1000", " 5 ", "2,5", "0,25", "7.", ".5", "1000.000000000"} {
			_, err := terms.Validate(in)
			assert.NoError(t, err, in)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		tests := []struct {
			in   string
			kind error
			msg  string
		}{
			{"0.1", ErrTooSmall, "Minimum purchase is 0.2 TON"},
			{"0", ErrTooSmall, "Minimum purchase is 0.2 TON"},
			{"0.199999999", ErrTooSmall, "Minimum purchase is 0.2 TON"},
			{"1000.000000001", ErrTooLarge, "Maximum purchase is 1000 TON"},
			{"5000", ErrTooLarge, "Maximum purchase is 1000 TON"},
			{"", ErrNotANumber, "Please enter a valid amount"},
			{".", ErrNotANumber, "Please enter a valid amount"},
			{"-1", ErrNotANumber, "Please enter a valid amount"},
			{"1e3", ErrNotANumber, "Please enter a valid amount"},
			{"abc", ErrNotANumber, "Please enter a valid amount"},
			{"1.2.3", ErrNotANumber, "Please enter a valid amount"},
			{"1,000", ErrNotANumber, "Please enter a valid amount"},
			{"10,000", ErrNotANumber, "Please enter a valid amount"},
			{"1,000,000", ErrNotANumber, "Please enter a valid amount"},
			{"1,000.5", ErrNotANumber, "Please enter a valid amount"},
			{"1.0000000001", ErrTooPrecise, "Amount supports at most 9 decimal places"},
		}

		for _, tt := range tests {
			_, err := terms.Validate(tt.in)
			require.Error(t, err, tt.in)
			assert.ErrorIs(t, err, tt.kind, tt.in)
			assert.Equal(t, tt.msg, err.Error(), tt.in)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		}
	})
}

func TestQuote(t *testing.T) {
	terms := testTerms()

	q, err := terms.Quote("10")
	require.NoError(t, err)
	assert.Equal(t, "10", q.TonAmount.String())
	assert.Equal(t, "75000", q.TokenAmount.String())
	assert.Equal(t, "10000000000", q.NanoAmount)

	_, err = terms.Quote("0.1")
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestBuildTransfer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := BuildTransfer(decimal.RequireFromString("1.5"), "EQ-receiver", now, 60*time.Second)

	assert.Equal(t, int64(1_700_000_060), req.ValidUntil)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "EQ-receiver", req.Messages[0].Address)
	assert.Equal(t, "1500000000", req.Messages[0].Amount)
}

func TestWindow(t *testing.T) {
	end := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	w := Window{End: end}

	before := end.Add(-90 * time.Minute)
	assert.False(t, w.Ended(before))
	assert.Equal(t, 90*time.Minute, w.Remaining(before))

	assert.True(t, w.Ended(end))
	assert.Zero(t, w.Remaining(end.Add(time.Hour)))
}
