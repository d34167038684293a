package bookstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStockErrorMatchesKind(t *testing.T) {
	var err error = &StockError{BookID: 7, Requested: 3, Available: 1}
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NotErrorIs(t, err, ErrNotFound)

	var se *StockError
	require.True(t, errors.As(err, &se))
	require.Equal(t, int32(1), se.Available)
}

func TestUnavailableKeepsCause(t *testing.T) {
	err := Unavailable("catalog.CheckStock", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMoney(t *testing.T) {
	price := Cents(1000)
	require.Equal(t, Cents(2000), LineTotal(price, 2))
	require.Equal(t, "20.00", LineTotal(price, 2).String())
	require.Equal(t, "-0.05", Cents(-5).String())
	require.Equal(t, Cents(1250), Cents(1000).Add(Cents(250)))
}
