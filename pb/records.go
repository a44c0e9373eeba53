package pb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

const (
	// checksumSize is the size of the xxhash32 trailer every encoded record ends with.
	checksumSize = 4

	// OrderSize is a static size. This is how many bytes each Order consumes once encoded.
	OrderSize = 0 + // Simply here to align the other items.
		8 + // Id (uint64 - 8 bytes)
		8 + // CustomerId (uint64 - 8 bytes)
		8 + // OrderDate (int64 - 8 bytes)
		4 + // Amount (uint32 - 4 bytes)
		checksumSize

	// customerFixedSize is the size of a Customer without the bytes of its name and email.
	customerFixedSize = 8 + // Id (uint64 - 8 bytes)
		2 + // Name length (uint16 - 2 bytes)
		2 + // Email length (uint16 - 2 bytes)
		checksumSize

	// orderItemFixedSize is the size of an OrderItem without the bytes of its product name.
	orderItemFixedSize = 8 + // Id (uint64 - 8 bytes)
		8 + // OrderId (uint64 - 8 bytes)
		2 + // ProductName length (uint16 - 2 bytes)
		2 + // Quantity (uint16 - 2 bytes)
		4 + // Price (uint32 - 4 bytes)
		checksumSize
)

var (
	// ErrBadChecksum is returned when the checksum trailer of an encoded record does not match the record. This
	// usually means the bytes were not produced by Marshal or were truncated.
	ErrBadChecksum = errors.New("record has bad checksum")
)

type (
	// Customer is a row of the customers table.
	Customer struct {
		Id    uint64
		Name  string
		Email string
	}

	// Order is a row of the orders table. OrderDate is a unix timestamp in seconds.
	Order struct {
		Id         uint64
		CustomerId uint64
		OrderDate  int64
		Amount     uint32
	}

	// OrderItem is a row of the order_items table.
	OrderItem struct {
		Id          uint64
		OrderId     uint64
		ProductName string
		Quantity    uint16
		Price       uint32
	}
)

// putChecksum writes the xxhash32 of everything before the trailer into the trailer.
func putChecksum(buf []byte) {
	body := buf[:len(buf)-checksumSize]
	binary.BigEndian.PutUint32(buf[len(body):], xxhash.Checksum32(body))
}

// verifyChecksum returns the record body if the trailer matches it.
func verifyChecksum(src []byte) ([]byte, error) {
	body := src[:len(src)-checksumSize]
	if xxhash.Checksum32(body) != binary.BigEndian.Uint32(src[len(body):]) {
		return nil, ErrBadChecksum
	}

	return body, nil
}

func tooShort(kind string, need, got int) error {
	return fmt.Errorf("cannot unmarshal %s, buffer is too small. Need: %d Got: %d", kind, need, got)
}

func checkStringLength(kind, field string, value string) error {
	if len(value) > math.MaxUint16 {
		return fmt.Errorf("cannot marshal %s, %s is %d bytes, max is %d", kind, field, len(value), math.MaxUint16)
	}

	return nil
}

// EncodedSize is the size (in bytes) of the Customer once it has been marshalled.
func (c *Customer) EncodedSize() int {
	return customerFixedSize + len(c.Name) + len(c.Email)
}

func (c *Customer) Marshal() ([]byte, error) {
	if err := checkStringLength("Customer", "Name", c.Name); err != nil {
		return nil, err
	}
	if err := checkStringLength("Customer", "Email", c.Email); err != nil {
		return nil, err
	}

	buf := make([]byte, c.EncodedSize())
	i := 0

	binary.BigEndian.PutUint64(buf[i:i+8], c.Id)
	i += 8

	binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(c.Name)))
	i += 2

	i += copy(buf[i:], c.Name)

	binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(c.Email)))
	i += 2

	copy(buf[i:], c.Email)

	putChecksum(buf)
	return buf, nil
}

func (c *Customer) Unmarshal(src []byte) error {
	if len(src) < customerFixedSize {
		return tooShort("Customer", customerFixedSize, len(src))
	}

	body, err := verifyChecksum(src)
	if err != nil {
		return errors.Wrap(err, "cannot unmarshal Customer")
	}
	*c = Customer{}

	i := 0

	c.Id = binary.BigEndian.Uint64(body[i : i+8])
	i += 8

	nameLength := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2

	// The email length still has to follow the name.
	if len(body) < i+nameLength+2 {
		return fmt.Errorf("cannot unmarshal Customer, name length %d does not fit the buffer", nameLength)
	}
	c.Name = string(body[i : i+nameLength])
	i += nameLength

	emailLength := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2

	if len(body) < i+emailLength {
		return fmt.Errorf("cannot unmarshal Customer, email length %d does not fit the buffer", emailLength)
	}
	c.Email = string(body[i : i+emailLength])

	return nil
}

// MarshalEx encodes the order into dst which must be at least OrderSize bytes.
func (o *Order) MarshalEx(dst []byte) error {
	// If the provided bytes aren't long enough to encode the order then we can fail early.
	if len(dst) < OrderSize {
		return fmt.Errorf(
			"cannot marshal Order, buffer is too small. Need: %d Got: %d",
			OrderSize,
			len(dst),
		)
	}

	i := 0

	binary.BigEndian.PutUint64(dst[i:i+8], o.Id)
	i += 8

	binary.BigEndian.PutUint64(dst[i:i+8], o.CustomerId)
	i += 8

	binary.BigEndian.PutUint64(dst[i:i+8], uint64(o.OrderDate))
	i += 8

	binary.BigEndian.PutUint32(dst[i:i+4], o.Amount)

	putChecksum(dst[:OrderSize])
	return nil
}

func (o *Order) Marshal() []byte {
	buf := make([]byte, OrderSize)
	_ = o.MarshalEx(buf)
	return buf
}

func (o *Order) Unmarshal(src []byte) error {
	// If the provided bytes aren't long enough to decode the order then we can fail early.
	if len(src) < OrderSize {
		return tooShort("Order", OrderSize, len(src))
	}

	body, err := verifyChecksum(src[:OrderSize])
	if err != nil {
		return errors.Wrap(err, "cannot unmarshal Order")
	}
	*o = Order{}

	i := 0

	o.Id = binary.BigEndian.Uint64(body[i : i+8])
	i += 8

	o.CustomerId = binary.BigEndian.Uint64(body[i : i+8])
	i += 8

	o.OrderDate = int64(binary.BigEndian.Uint64(body[i : i+8]))
	i += 8

	o.Amount = binary.BigEndian.Uint32(body[i : i+4])
	return nil
}

// EncodedSize is the size (in bytes) of the OrderItem once it has been marshalled.
func (o *OrderItem) EncodedSize() int {
	return orderItemFixedSize + len(o.ProductName)
}

func (o *OrderItem) Marshal() ([]byte, error) {
	if err := checkStringLength("OrderItem", "ProductName", o.ProductName); err != nil {
		return nil, err
	}

	buf := make([]byte, o.EncodedSize())
	i := 0

	binary.BigEndian.PutUint64(buf[i:i+8], o.Id)
	i += 8

	binary.BigEndian.PutUint64(buf[i:i+8], o.OrderId)
	i += 8

	binary.BigEndian.PutUint16(buf[i:i+2], uint16(len(o.ProductName)))
	i += 2

	i += copy(buf[i:], o.ProductName)

	binary.BigEndian.PutUint16(buf[i:i+2], o.Quantity)
	i += 2

	binary.BigEndian.PutUint32(buf[i:i+4], o.Price)

	putChecksum(buf)
	return buf, nil
}

func (o *OrderItem) Unmarshal(src []byte) error {
	if len(src) < orderItemFixedSize {
		return tooShort("OrderItem", orderItemFixedSize, len(src))
	}

	body, err := verifyChecksum(src)
	if err != nil {
		return errors.Wrap(err, "cannot unmarshal OrderItem")
	}
	*o = OrderItem{}

	i := 0

	o.Id = binary.BigEndian.Uint64(body[i : i+8])
	i += 8

	o.OrderId = binary.BigEndian.Uint64(body[i : i+8])
	i += 8

	nameLength := int(binary.BigEndian.Uint16(body[i : i+2]))
	i += 2

	// Quantity and price follow the product name.
	if len(body) != i+nameLength+2+4 {
		return fmt.Errorf("cannot unmarshal OrderItem, product name length %d does not match buffer", nameLength)
	}
	o.ProductName = string(body[i : i+nameLength])
	i += nameLength

	o.Quantity = binary.BigEndian.Uint16(body[i : i+2])
	i += 2

	o.Price = binary.BigEndian.Uint32(body[i : i+4])
	return nil
}
