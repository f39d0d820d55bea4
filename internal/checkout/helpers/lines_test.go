package helpers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/orders"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

func TestGroupByProduct(t *testing.T) {
	t.Parallel()
	productA := uuid.New()
	productB := uuid.New()
	items := []orders.ItemInput{
		{ProductID: productA, Quantity: 2},
		{ProductID: productB, Quantity: 1},
		{ProductID: productA, Quantity: 3},
	}

	grouped := GroupByProduct(items)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 products, got %d", len(grouped))
	}
	if grouped[0].ProductID != productA || grouped[0].Quantity != 5 {
		t.Fatalf("unexpected first group %+v", grouped[0])
	}
	if grouped[1].ProductID != productB || grouped[1].Quantity != 1 {
		t.Fatalf("unexpected second group %+v", grouped[1])
	}
}

func TestValidateLines(t *testing.T) {
	t.Parallel()
	product := uuid.New()
	line := func(mutate func(*orders.ItemInput)) orders.ItemInput {
		item := orders.ItemInput{ProductID: product, Name: "Suya", UnitPrice: decimal.NewFromInt(1500), Quantity: 1}
		if mutate != nil {
			mutate(&item)
		}
		return item
	}

	cases := []struct {
		name  string
		items []orders.ItemInput
		ok    bool
	}{
		{name: "valid", items: []orders.ItemInput{line(nil)}, ok: true},
		{name: "repeated product same price", items: []orders.ItemInput{line(nil), line(func(i *orders.ItemInput) { i.Quantity = 4 })}, ok: true},
		{name: "empty", items: nil},
		{name: "missing product", items: []orders.ItemInput{line(func(i *orders.ItemInput) { i.ProductID = uuid.Nil })}},
		{name: "blank name", items: []orders.ItemInput{line(func(i *orders.ItemInput) { i.Name = "  " })}},
		{name: "zero quantity", items: []orders.ItemInput{line(func(i *orders.ItemInput) { i.Quantity = 0 })}},
		{name: "excessive quantity", items: []orders.ItemInput{line(func(i *orders.ItemInput) { i.Quantity = MaxLineQuantity + 1 })}},
		{name: "free item", items: []orders.ItemInput{line(func(i *orders.ItemInput) { i.UnitPrice = decimal.Zero })}},
		{name: "conflicting prices", items: []orders.ItemInput{line(nil), line(func(i *orders.ItemInput) { i.UnitPrice = decimal.NewFromInt(1400) })}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateLines(tc.items)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
