package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const orderNoPrefix = "ORD"

// NewOrderNo builds ORD + yyyyMMddHHmmss + a 4 digit random suffix.
func NewOrderNo(now time.Time) string {
	return fmt.Sprintf("%s%s%04d", orderNoPrefix, now.Format("20060102150405"), rand.IntN(10000))
}
