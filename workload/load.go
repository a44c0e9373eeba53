package workload

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/pb"
	"github.com/elliotcourant/mvstore/z"
	"github.com/elliotcourant/timber"
	"github.com/pkg/errors"
)

var (
	firstNames = []string{
		"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda", "David", "Elizabeth",
		"William", "Barbara", "Richard", "Susan", "Joseph", "Jessica", "Thomas", "Sarah", "Charles", "Karen",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez",
		"Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	}
	domains  = []string{"example.com", "example.org", "example.net", "mail.test"}
	products = []string{
		"anchor", "basket", "candle", "drawer", "engine", "fabric", "garden", "hammer", "island", "jacket",
		"kettle", "ladder", "magnet", "needle", "oyster", "pencil", "quiver", "ribbon", "saddle", "tablet",
	}

	// orderDateStart is the first day orders are generated for, they are spread over the following ten years.
	orderDateStart = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	orderDateSpan  = int64(10 * 365 * 24 * 60 * 60)
)

const (
	// maxAmount is the exclusive upper bound of generated order amounts and item prices, amounts have at most five
	// digits.
	maxAmount = 100000
	maxQty    = 10
)

type (
	record struct {
		key   []byte
		value []byte
	}

	// LoadStats describes what Load wrote.
	LoadStats struct {
		Customers int
		Orders    int
		Items     int
		Batches   int
		Elapsed   time.Duration
	}

	generator struct {
		rand *rand.Rand
	}
)

func (g *generator) pick(values []string) string {
	return values[g.rand.Intn(len(values))]
}

func (g *generator) between(min, max int) int {
	return min + g.rand.Intn(max-min+1)
}

func (g *generator) customer(id uint64) pb.Customer {
	first, last := g.pick(firstNames), g.pick(lastNames)
	return pb.Customer{
		Id:   id,
		Name: first + " " + last,
		Email: fmt.Sprintf(
			"%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), id, g.pick(domains),
		),
	}
}

func (g *generator) order(id uint64, customers int) pb.Order {
	return pb.Order{
		Id:         id,
		CustomerId: uint64(g.between(1, customers)),
		OrderDate:  orderDateStart + g.rand.Int63n(orderDateSpan),
		Amount:     uint32(g.rand.Intn(maxAmount)),
	}
}

func (g *generator) item(id uint64, orders int) pb.OrderItem {
	return pb.OrderItem{
		Id:          id,
		OrderId:     uint64(g.between(1, orders)),
		ProductName: g.pick(products),
		Quantity:    uint16(g.between(1, maxQty)),
		Price:       uint32(g.rand.Intn(maxAmount)),
	}
}

// generate builds every record of the dataset described by the config. The records are generated on the calling
// goroutine from a single seeded source, so the result only depends on the config.
func generate(config Config) ([]record, error) {
	if config.Customers <= 0 || (config.Items > 0 && config.Orders <= 0) {
		return nil, errors.Errorf(
			"invalid dataset size customers=%d orders=%d items=%d",
			config.Customers, config.Orders, config.Items,
		)
	}

	g := &generator{rand: rand.New(rand.NewSource(config.Seed))}
	records := make([]record, 0, config.Customers+config.Orders+config.Items)

	for i := 1; i <= config.Customers; i++ {
		customer := g.customer(uint64(i))
		value, err := customer.Marshal()
		if err != nil {
			return nil, err
		}

		records = append(records, record{key: customerKey(customer.Id), value: value})
	}

	for i := 1; i <= config.Orders; i++ {
		order := g.order(uint64(i), config.Customers)
		records = append(records, record{key: orderKey(order.Id), value: order.Marshal()})
	}

	for i := 1; i <= config.Items; i++ {
		item := g.item(uint64(i), config.Orders)
		value, err := item.Marshal()
		if err != nil {
			return nil, err
		}

		records = append(records, record{key: itemKey(item.OrderId, item.Id), value: value})
	}

	return records, nil
}

// writeBatch writes the records in one transaction on its own session.
func writeBatch(store *mvstore.Store, config Config, batch []record) error {
	session := store.NewSession()
	if err := session.Begin(config.Isolation); err != nil {
		return err
	}

	for _, r := range batch {
		if err := session.Write(r.key, r.value); err != nil {
			_ = session.Rollback()
			return z.Wrapf(err, "failed to write %q", r.key)
		}
	}

	_, err := session.Commit()
	return z.Wrapf(err, "failed to commit batch of %d records", len(batch))
}

// Load generates the dataset and writes it to the store in batches of BatchSize, with up to Workers batches being
// written at the same time. Load stops handing out batches once one of them fails and returns that error.
func Load(store *mvstore.Store, config Config) (LoadStats, error) {
	start := time.Now()
	records, err := generate(config)
	if err != nil {
		return LoadStats{}, err
	}

	batchSize, workers := config.BatchSize, config.Workers
	if batchSize <= 0 {
		batchSize = len(records)
	}
	if workers <= 0 {
		workers = 1
	}

	stats := LoadStats{
		Customers: config.Customers,
		Orders:    config.Orders,
		Items:     config.Items,
	}

	throttle := z.NewThrottle(workers)
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := records[i:end]
		if err := throttle.Go(func() error {
			return writeBatch(store, config, batch)
		}); err != nil {
			break
		}
		stats.Batches++
	}

	if err := throttle.Finish(); err != nil {
		return stats, errors.Wrap(err, "failed to load dataset")
	}

	stats.Elapsed = time.Since(start)
	timber.Infof(
		"loaded %d customers, %d orders and %d items in %d batches (%s)",
		stats.Customers, stats.Orders, stats.Items, stats.Batches, stats.Elapsed,
	)

	return stats, nil
}
