package workload

import (
	"github.com/elliotcourant/mvstore/z"
)

var (
	customerPrefix = []byte("customer/")
	orderPrefix    = []byte("order/")
	itemPrefix     = []byte("item/")
)

func customerKey(id uint64) []byte {
	return z.KeyWithId(customerPrefix, id)
}

func orderKey(id uint64) []byte {
	return z.KeyWithId(orderPrefix, id)
}

// orderItemsPrefix is the prefix shared by every item of the order. Items are keyed by order first so that the
// items of one order can be scanned without touching any other.
func orderItemsPrefix(orderId uint64) []byte {
	return z.KeyWithId(itemPrefix, orderId)
}

func itemKey(orderId, itemId uint64) []byte {
	return z.KeyWithId(orderItemsPrefix(orderId), itemId)
}
