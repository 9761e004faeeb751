package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

func TestEncodeItems_EmptyIsArray(t *testing.T) {
	data, err := EncodeItems(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEncodeItems_Layout(t *testing.T) {
	data, err := EncodeItems([]domain.LineItem{{
		Product: domain.Product{
			ID: "p1", Name: "Tomato", Price: 40.5, Unit: "kg",
			Image: "t.png", Category: "veg", Description: "fresh",
		},
		Quantity: 2,
	}})
	require.NoError(t, err)

	assert.JSONEq(t, `[{
		"id":"p1","name":"Tomato","price":40.5,"unit":"kg",
		"image":"t.png","category":"veg","description":"fresh","quantity":2
	}]`, string(data))
}

func TestDecodeItems_NullIsEmpty(t *testing.T) {
	items, err := DecodeItems([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeItems_Corrupt(t *testing.T) {
	_, err := DecodeItems([]byte(`[{"id":"a","quantity":-1}]`))
	assert.ErrorIs(t, err, ErrCorruptPayload)

	_, err = DecodeItems([]byte(`nope`))
	assert.ErrorIs(t, err, ErrCorruptPayload)
}

func TestDecodeItems_UnderscoreIDFallback(t *testing.T) {
	items, err := DecodeItems([]byte(`[
		{"_id":"legacy","name":"Tomato","price":40,"quantity":1},
		{"id":"new","_id":"ignored","name":"Onion","price":30,"quantity":2}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "legacy", items[0].ID)
	assert.Equal(t, "new", items[1].ID)

	_, err = DecodeItems([]byte(`[{"_id":"a","quantity":1},{"id":"a","quantity":1}]`))
	assert.ErrorIs(t, err, ErrCorruptPayload)
}
