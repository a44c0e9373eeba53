package workload

import (
	"strconv"

	"github.com/dgraph-io/ristretto"
	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/pb"
)

type (
	// recordCache holds decoded records. Committed versions never change, so a row's key and the commit order of the
	// version it was read from identify its content and nothing ever has to be invalidated.
	recordCache struct {
		cache *ristretto.Cache
	}
)

func newRecordCache(maxCost int64) (*recordCache, error) {
	if maxCost <= 0 {
		return &recordCache{}, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 4,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &recordCache{cache: cache}, nil
}

func cacheKey(row mvstore.Row) string {
	return string(row.Key) + "@" + strconv.FormatUint(row.Version, 10)
}

// decode returns the cached record for the row, or decodes the row with fn and caches the result.
func (c *recordCache) decode(row mvstore.Row, fn func([]byte) (interface{}, error)) (interface{}, error) {
	if c.cache == nil {
		return fn(row.Value)
	}

	key := cacheKey(row)
	if value, ok := c.cache.Get(key); ok {
		return value, nil
	}

	value, err := fn(row.Value)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, value, int64(len(row.Value)))
	return value, nil
}

func (c *recordCache) customer(row mvstore.Row) (*pb.Customer, error) {
	value, err := c.decode(row, func(src []byte) (interface{}, error) {
		customer := &pb.Customer{}
		return customer, customer.Unmarshal(src)
	})
	if err != nil {
		return nil, err
	}

	return value.(*pb.Customer), nil
}

func (c *recordCache) order(row mvstore.Row) (*pb.Order, error) {
	value, err := c.decode(row, func(src []byte) (interface{}, error) {
		order := &pb.Order{}
		return order, order.Unmarshal(src)
	})
	if err != nil {
		return nil, err
	}

	return value.(*pb.Order), nil
}

func (c *recordCache) item(row mvstore.Row) (*pb.OrderItem, error) {
	value, err := c.decode(row, func(src []byte) (interface{}, error) {
		item := &pb.OrderItem{}
		return item, item.Unmarshal(src)
	})
	if err != nil {
		return nil, err
	}

	return value.(*pb.OrderItem), nil
}

// wait blocks until every pending write to the cache has been applied.
func (c *recordCache) wait() {
	if c.cache != nil {
		c.cache.Wait()
	}
}

func (c *recordCache) close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
