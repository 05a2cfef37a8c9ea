package httpx

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/iippk/PersonalWorks/internal/orders"
)

// Headers set by the gateway after it has validated the caller's token.
const (
	HeaderStudentID = "X-Student-Id"
	HeaderBuyerName = "X-Buyer-Name"
	HeaderUserName  = "X-User-Name"
)

const base64Prefix = "base64:"

// principal reads the caller identity. The id is trusted as-is.
func principal(r *http.Request) orders.Principal {
	name := decodeHeaderValue(r.Header.Get(HeaderBuyerName))
	if strings.TrimSpace(name) == "" {
		name = decodeHeaderValue(r.Header.Get(HeaderUserName))
	}
	return orders.Principal{
		ID:   strings.TrimSpace(r.Header.Get(HeaderStudentID)),
		Name: name,
	}
}

// decodeHeaderValue unwraps "base64:"-prefixed UTF-8 values; anything that
// fails to decode is returned unchanged.
func decodeHeaderValue(v string) string {
	if !strings.HasPrefix(v, base64Prefix) {
		return v
	}
	b, err := base64.StdEncoding.DecodeString(v[len(base64Prefix):])
	if err != nil {
		return v
	}
	return string(b)
}
