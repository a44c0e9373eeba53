package workload

import (
	"github.com/elliotcourant/mvstore/options"
)

type (
	// Config controls the size and shape of the generated dataset and how it is loaded.
	Config struct {
		// Customers, Orders and Items are the number of rows generated for each table. Orders reference a random
		// customer and items reference a random order, so some customers have no orders and some orders no items.
		Customers int
		Orders    int
		Items     int

		// Seed seeds the generator. Two loads with the same seed produce the same rows.
		Seed int64

		// BatchSize is the number of rows written per transaction.
		BatchSize int

		// Workers is the number of sessions loading batches at the same time.
		Workers int

		// Isolation is the level each batch is written at.
		Isolation options.IsolationLevel

		// CacheSize is the maximum number of encoded bytes the decoded record cache accounts for.
		CacheSize int64
	}
)

// DefaultConfig returns the dataset the benchmark has always been run against: ten thousand rows in each table.
func DefaultConfig() Config {
	return Config{
		Customers: 10000,
		Orders:    10000,
		Items:     10000,
		Seed:      1,
		BatchSize: 500,
		Workers:   4,
		Isolation: options.ReadCommitted,
		CacheSize: 8 << 20,
	}
}

func (c Config) WithSize(customers, orders, items int) Config {
	c.Customers = customers
	c.Orders = orders
	c.Items = items
	return c
}

func (c Config) WithSeed(seed int64) Config {
	c.Seed = seed
	return c
}

func (c Config) WithBatchSize(size int) Config {
	c.BatchSize = size
	return c
}

func (c Config) WithWorkers(workers int) Config {
	c.Workers = workers
	return c
}
