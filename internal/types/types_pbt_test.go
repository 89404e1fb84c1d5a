package types

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Session.Duration is never negative for a well-formed session
func TestSessionDurationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("duration is end minus start", prop.ForAll(
		func(start, length int64) bool {
			s := Session{Start: start, End: start + length}
			return s.Duration() == length && s.Duration() >= 0
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<30),
	))

	properties.Property("Hex always carries the prefix", prop.ForAll(
		func(body string) bool {
			return strings.HasPrefix(AddressKey(body).Hex(), "0x")
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
