package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

func TestMergeItems(t *testing.T) {
	got, err := mergeItems([]orders.Item{
		{BookID: "b2", Quantity: 1},
		{BookID: "b1", Quantity: 2},
		{BookID: "b2", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, []orders.Item{{BookID: "b2", Quantity: 5}, {BookID: "b1", Quantity: 2}}, got)

	_, err = mergeItems([]orders.Item{{BookID: "", Quantity: 1}})
	assert.True(t, errs.Is(err, errs.BadInput))
}
