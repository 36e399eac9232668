package product

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the immutable catalog identity for a SKU.
// Created by catalog management; read-only to the order saga.
type Product struct {
	ID    int64
	SKU   string
	Name  string
	Price decimal.Decimal
}
