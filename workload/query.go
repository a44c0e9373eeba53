package workload

import (
	"sort"
	"time"

	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/pb"
	"github.com/elliotcourant/timber"
	"github.com/pkg/errors"
)

var (
	// ErrResultMismatch is returned by Compare when the two query plans do not return the same rows.
	ErrResultMismatch = errors.New("join and cte queries returned different rows")
)

type (
	// AmountRange selects orders whose amount is between Min and Max, both inclusive.
	AmountRange struct {
		Min uint32
		Max uint32
	}

	// OrderLine is a single row of the customers, orders and order items join.
	OrderLine struct {
		OrderId     uint64
		ItemId      uint64
		Name        string
		Email       string
		OrderDate   int64
		Amount      uint32
		ProductName string
		Quantity    uint16
		Price       uint32
	}

	// Report is the outcome of running both query plans over the same range.
	Report struct {
		Range AmountRange
		Join  time.Duration
		CTE   time.Duration
		Rows  int
	}

	// Reader runs the join queries against a loaded store.
	Reader struct {
		store *mvstore.Store
		cache *recordCache
	}
)

// DefaultRange is the amount range the benchmark has always been run with.
var DefaultRange = AmountRange{Min: 1111, Max: 1122}

func (a AmountRange) includes(amount uint32) bool {
	return amount >= a.Min && amount <= a.Max
}

// NewReader creates a reader whose decoded record cache is bounded by config.CacheSize. A size of zero disables the
// cache.
func NewReader(store *mvstore.Store, config Config) (*Reader, error) {
	cache, err := newRecordCache(config.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create record cache")
	}

	return &Reader{
		store: store,
		cache: cache,
	}, nil
}

func (r *Reader) Close() {
	r.cache.close()
}

// execute runs the query and adds the time it took to elapsed.
func (r *Reader) execute(elapsed *time.Duration, q mvstore.Query) ([]mvstore.Row, error) {
	took, rows, err := r.store.Execute(q)
	*elapsed += took
	return rows, err
}

// ordersIn scans every order and keeps those within the range.
func (r *Reader) ordersIn(elapsed *time.Duration, amounts AmountRange) ([]*pb.Order, error) {
	rows, err := r.execute(elapsed, mvstore.Query{
		Prefix: orderPrefix,
		Filter: func(key, value []byte) bool {
			var order pb.Order
			return order.Unmarshal(value) == nil && amounts.includes(order.Amount)
		},
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*pb.Order, 0, len(rows))
	for _, row := range rows {
		order, err := r.cache.order(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, nil
}

func newOrderLine(customer *pb.Customer, order *pb.Order, item *pb.OrderItem) OrderLine {
	return OrderLine{
		OrderId:     order.Id,
		ItemId:      item.Id,
		Name:        customer.Name,
		Email:       customer.Email,
		OrderDate:   order.OrderDate,
		Amount:      order.Amount,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		Price:       item.Price,
	}
}

func sortLines(lines []OrderLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].OrderId != lines[j].OrderId {
			return lines[i].OrderId < lines[j].OrderId
		}

		return lines[i].ItemId < lines[j].ItemId
	})
}

// Join finds the matching orders and then, for each of them, looks up its customer and its items. This is the
// nested loop plan of a join driven by the orders table through both indexes. The returned duration is the time
// spent in the store.
func (r *Reader) Join(amounts AmountRange) (time.Duration, []OrderLine, error) {
	var elapsed time.Duration
	orders, err := r.ordersIn(&elapsed, amounts)
	if err != nil {
		return elapsed, nil, err
	}

	lines := make([]OrderLine, 0)
	for _, order := range orders {
		customers, err := r.execute(&elapsed, mvstore.Query{
			Prefix: customerKey(order.CustomerId),
			Limit:  1,
		})
		if err != nil {
			return elapsed, nil, err
		}

		// An order whose customer does not exist has no rows in an inner join.
		if len(customers) == 0 {
			continue
		}

		customer, err := r.cache.customer(customers[0])
		if err != nil {
			return elapsed, nil, err
		}

		items, err := r.execute(&elapsed, mvstore.Query{
			Prefix: orderItemsPrefix(order.Id),
		})
		if err != nil {
			return elapsed, nil, err
		}

		for _, row := range items {
			item, err := r.cache.item(row)
			if err != nil {
				return elapsed, nil, err
			}

			lines = append(lines, newOrderLine(customer, order, item))
		}
	}

	sortLines(lines)
	return elapsed, lines, nil
}

// CTE materializes the matching orders first and then joins them against a single scan of the customers and a
// single scan of the items. The returned duration is the time spent in the store.
func (r *Reader) CTE(amounts AmountRange) (time.Duration, []OrderLine, error) {
	var elapsed time.Duration
	orders, err := r.ordersIn(&elapsed, amounts)
	if err != nil {
		return elapsed, nil, err
	}

	byId := make(map[uint64]*pb.Order, len(orders))
	wanted := make(map[uint64]*pb.Customer, len(orders))
	for _, order := range orders {
		byId[order.Id] = order
		wanted[order.CustomerId] = nil
	}

	customers, err := r.execute(&elapsed, mvstore.Query{Prefix: customerPrefix})
	if err != nil {
		return elapsed, nil, err
	}

	for _, row := range customers {
		customer, err := r.cache.customer(row)
		if err != nil {
			return elapsed, nil, err
		}

		if _, ok := wanted[customer.Id]; ok {
			wanted[customer.Id] = customer
		}
	}

	items, err := r.execute(&elapsed, mvstore.Query{Prefix: itemPrefix})
	if err != nil {
		return elapsed, nil, err
	}

	lines := make([]OrderLine, 0)
	for _, row := range items {
		item, err := r.cache.item(row)
		if err != nil {
			return elapsed, nil, err
		}

		order, ok := byId[item.OrderId]
		if !ok {
			continue
		}

		if customer := wanted[order.CustomerId]; customer != nil {
			lines = append(lines, newOrderLine(customer, order, item))
		}
	}

	sortLines(lines)
	return elapsed, lines, nil
}

// Compare runs both plans over the range and reports how long each spent in the store. ErrResultMismatch is
// returned if they disagree on the rows.
func (r *Reader) Compare(amounts AmountRange) (*Report, error) {
	joinTime, joinLines, err := r.Join(amounts)
	if err != nil {
		return nil, errors.Wrap(err, "join query failed")
	}

	cteTime, cteLines, err := r.CTE(amounts)
	if err != nil {
		return nil, errors.Wrap(err, "cte query failed")
	}

	if len(joinLines) != len(cteLines) {
		return nil, errors.Wrapf(ErrResultMismatch, "join returned %d rows, cte returned %d", len(joinLines), len(cteLines))
	}

	for i := range joinLines {
		if joinLines[i] != cteLines[i] {
			return nil, errors.Wrapf(ErrResultMismatch, "row %d: join %+v, cte %+v", i, joinLines[i], cteLines[i])
		}
	}

	report := &Report{
		Range: amounts,
		Join:  joinTime,
		CTE:   cteTime,
		Rows:  len(joinLines),
	}
	timber.Infof(
		"amounts [%d, %d]: %d rows, join %s, cte %s",
		amounts.Min, amounts.Max, report.Rows, report.Join, report.CTE,
	)

	return report, nil
}
