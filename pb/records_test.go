package pb

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomer_Marshal_Unmarshal(t *testing.T) {
	customer := Customer{
		Id:    12451,
		Name:  "Alice Liddell",
		Email: "alice.liddell12451@example.com",
	}
	encoded, err := customer.Marshal()
	require.NoError(t, err)
	assert.Len(t, encoded, customer.EncodedSize())

	result := Customer{}
	require.NoError(t, result.Unmarshal(encoded))
	assert.Equal(t, customer, result)

	t.Run("name too long", func(t *testing.T) {
		_, err := (&Customer{Name: strings.Repeat("a", 1<<16)}).Marshal()
		assert.Error(t, err)
	})
}

func TestOrder_Unmarshal(t *testing.T) {
	order := Order{
		Id:         5324,
		CustomerId: 12451,
		OrderDate:  1700000000,
		Amount:     1117,
	}
	encoded := order.Marshal()
	assert.Len(t, encoded, OrderSize)

	t.Run("valid", func(t *testing.T) {
		result := Order{}
		require.NoError(t, result.Unmarshal(encoded))
		assert.Equal(t, order, result)
	})

	t.Run("too short", func(t *testing.T) {
		result := Order{}
		assert.Error(t, result.Unmarshal(encoded[:OrderSize-1]))
	})

	t.Run("corrupted", func(t *testing.T) {
		corrupted := append([]byte{}, encoded...)
		corrupted[20] ^= 0xff
		result := Order{}
		assert.Equal(t, ErrBadChecksum, errors.Cause(result.Unmarshal(corrupted)))
	})

	t.Run("buffer too small to marshal", func(t *testing.T) {
		assert.Error(t, order.MarshalEx(make([]byte, 3)))
	})
}

func TestOrderItem_Unmarshal(t *testing.T) {
	item := OrderItem{
		Id:          4212415,
		OrderId:     5324,
		ProductName: "lamp",
		Quantity:    7,
		Price:       64327,
	}
	encoded, err := item.Marshal()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		result := OrderItem{}
		require.NoError(t, result.Unmarshal(encoded))
		assert.Equal(t, item, result)
	})

	t.Run("corrupted", func(t *testing.T) {
		corrupted := append([]byte{}, encoded...)
		corrupted[len(corrupted)-1] ^= 0x01
		result := OrderItem{}
		assert.Equal(t, ErrBadChecksum, errors.Cause(result.Unmarshal(corrupted)))
	})

	t.Run("too short", func(t *testing.T) {
		result := OrderItem{}
		assert.Error(t, result.Unmarshal(encoded[:5]))
	})
}

func BenchmarkOrder_MarshalEx(b *testing.B) {
	order := Order{
		Id:         5324,
		CustomerId: 12451,
		OrderDate:  1700000000,
		Amount:     1117,
	}

	dst := make([]byte, OrderSize)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = order.MarshalEx(dst)
	}
}

func BenchmarkOrder_Unmarshal(b *testing.B) {
	order := Order{
		Id:         5324,
		CustomerId: 12451,
		OrderDate:  1700000000,
		Amount:     1117,
	}
	encoded := order.Marshal()

	result := Order{}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = result.Unmarshal(encoded)
	}
}
