package normalize

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
)

func TestAddress(t *testing.T) {
	abc := strings.Repeat("0", 61) + "abc"

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "upper case with prefix", input: "0xABC", want: abc},
		{name: "bare lower case", input: "abc", want: abc},
		{name: "leading zero", input: "0x0abc", want: abc},
		{name: "upper prefix", input: "0XaBc", want: abc},
		{name: "full width", input: "0x" + strings.Repeat("f", 64), want: strings.Repeat("f", 64)},
		{name: "empty", input: "", wantErr: true},
		{name: "prefix only", input: "0x", wantErr: true},
		{name: "non hex", input: "0xabg", wantErr: true},
		{name: "too long", input: strings.Repeat("1", 65), wantErr: true},
		{name: "whitespace", input: " 0xabc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Address(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidAddress))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestAddressEquivalenceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("prefix, case and zero padding do not change the key", prop.ForAll(
		func(body string) bool {
			plain, err := Address(body)
			if err != nil {
				return false
			}
			prefixed, err := Address("0x" + strings.ToUpper(body))
			if err != nil {
				return false
			}
			padded, err := Address("0x0" + body)
			if err != nil {
				return false
			}
			return plain == prefixed && plain == padded && len(plain) == AddressHexLength
		},
		gen.RegexMatch("[0-9a-f]{1,63}"),
	))

	properties.TestingRun(t)
}

func TestDecodeShortString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ascii", input: "0x4c6f6f74", want: "Loot"},
		{name: "leading zero bytes skipped", input: "0x00004869", want: "Hi"},
		{name: "four bytes", input: "0x46697265", want: "Fire"},
		{name: "odd nibble count", input: "0x416", want: "\x04\x16"},
		{name: "prefix only", input: "0x", want: ""},
		{name: "all zero", input: "0x0000", want: ""},
		{name: "not hex", input: "0xzz", want: ""},
		{name: "no prefix", input: "6661", want: "fa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeShortString(tt.input))
		})
	}
}

func TestParseHexOrDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "hex", input: "0x1f", want: "31"},
		{name: "decimal", input: "1234", want: "1234"},
		{name: "felt sized", input: "0x" + strings.Repeat("f", 62), want: ""},
		{name: "empty", input: "", wantErr: true},
		{name: "prefix only", input: "0x", wantErr: true},
		{name: "negative", input: "-5", wantErr: true},
		{name: "signed hex", input: "0x-5", wantErr: true},
		{name: "mixed", input: "12ab", wantErr: true},
		{name: "float", input: "1.5", wantErr: true},
		{name: "wider than 256 bits hex", input: "0x1" + strings.Repeat("0", 64), want: new(big.Int).Lsh(big.NewInt(1), 256).String()},
		{name: "10^80", input: "1" + strings.Repeat("0", 80), want: "1" + strings.Repeat("0", 80)},
		{name: "uppercase prefix", input: "0XFF", want: "255"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHexOrDecimal(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidNumericLiteral))
				return
			}
			require.NoError(t, err)
			if tt.want != "" {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestUint64(t *testing.T) {
	n, err := Uint64("0x64")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)

	_, err = Uint64("0x" + strings.Repeat("f", 17))
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "zero", input: "0", want: 0},
		{name: "epoch seconds", input: "1740832200", want: ref.UnixMilli()},
		{name: "epoch millis", input: "1740832200000", want: ref.UnixMilli()},
		{name: "hex seconds", input: "0x67c2fdc8", want: ref.UnixMilli()},
		{name: "indexer layout", input: "2025-03-01 12:30:00", want: ref.UnixMilli()},
		{name: "iso without zone", input: "2025-03-01T12:30:00", want: ref.UnixMilli()},
		{name: "rfc3339", input: "2025-03-01T13:30:00+01:00", want: ref.UnixMilli()},
		{name: "garbage", input: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Timestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
