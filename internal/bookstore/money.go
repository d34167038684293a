package bookstore

import "fmt"

// Money is an amount in cents.
type Money int64

func Cents(c int64) Money { return Money(c) }

func (m Money) Add(o Money) Money   { return m + o }
func (m Money) Mul(qty int32) Money { return m * Money(qty) }
func (m Money) Cents() int64        { return int64(m) }

func (m Money) String() string {
	sign := ""
	c := int64(m)
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// LineTotal is the price of qty units at unit.
func LineTotal(unit Money, qty int32) Money { return unit.Mul(qty) }
