// Package normalize canonicalizes addresses, numeric literals and timestamps
// as they arrive from indexers. Every function here is pure.
package normalize

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// AddressHexLength is the width of a normalized address
const AddressHexLength = 64

// indexerTimeLayouts are the textual forms timestamps take in indexer rows
var indexerTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// msThreshold separates epoch seconds from epoch milliseconds (year 2286 in seconds)
const msThreshold = 10_000_000_000

func stripPrefix(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return s, false
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') && !('A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Address converts any textual form of an account address into its AddressKey.
// "0xABC", "abc" and "0x0abc" all yield the same key.
func Address(input string) (types.AddressKey, error) {
	if input == "" {
		return "", errors.NewInvalidAddressError(input, "empty")
	}

	body, _ := stripPrefix(input)
	if body == "" {
		return "", errors.NewInvalidAddressError(input, "no digits after prefix")
	}
	if !isHex(body) {
		return "", errors.NewInvalidAddressError(input, "not hexadecimal")
	}
	if len(body) > AddressHexLength {
		return "", errors.NewInvalidAddressError(input, "longer than 64 hex characters")
	}

	return types.AddressKey(strings.Repeat("0", AddressHexLength-len(body)) + strings.ToLower(body)), nil
}

// MustAddress is Address for literals known to be valid; it panics otherwise
func MustAddress(input string) types.AddressKey {
	key, err := Address(input)
	if err != nil {
		panic(err)
	}
	return key
}

// DecodeShortString reads a hex-encoded short string (names, icons) as ASCII,
// skipping zero bytes. Input that is not hex decodes to the empty string.
func DecodeShortString(hex string) string {
	body, _ := stripPrefix(hex)
	if body == "" || !isHex(body) {
		return ""
	}

	raw := common.FromHex(body)
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if b == 0 {
			continue
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// ParseHexOrDecimal accepts a 0x-prefixed hex literal or a plain decimal numeral
func ParseHexOrDecimal(value string) (*big.Int, error) {
	body, prefixed := stripPrefix(value)
	if body == "" {
		return nil, errors.NewInvalidNumericLiteralError(value)
	}
	if prefixed && !isHex(body) {
		return nil, errors.NewInvalidNumericLiteralError(value)
	}
	if !prefixed && !isDecimal(body) {
		return nil, errors.NewInvalidNumericLiteralError(value)
	}

	base := 10
	if prefixed {
		base = 16
	}
	n, ok := new(big.Int).SetString(body, base)
	if !ok {
		return nil, errors.NewInvalidNumericLiteralError(value)
	}
	return n, nil
}

// Uint64 parses a hex or decimal literal that must fit into 64 bits
func Uint64(value string) (uint64, error) {
	n, err := ParseHexOrDecimal(value)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, errors.NewInvalidNumericLiteralError(value)
	}
	return n.Uint64(), nil
}

// Timestamp converts an indexer timestamp into epoch milliseconds. It accepts
// epoch seconds, epoch milliseconds, hex literals and the indexer's text layouts.
// Empty input and "0" both mean "no timestamp" and yield 0.
func Timestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}

	if isDecimal(value) {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, errors.NewInvalidNumericLiteralError(value)
		}
		return epochToMillis(n), nil
	}

	if _, prefixed := stripPrefix(value); prefixed {
		n, err := Uint64(value)
		if err != nil {
			return 0, err
		}
		return epochToMillis(int64(n)), nil // #nosec G115 - timestamps are far below 2^63
	}

	for _, layout := range indexerTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}

	return 0, errors.NewInvalidNumericLiteralError(value)
}

func epochToMillis(n int64) int64 {
	if n < msThreshold {
		return n * 1000
	}
	return n
}
