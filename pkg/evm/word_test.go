package evm

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWord(t *testing.T) {
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	tests := []struct {
		name    string
		in      string
		want    *big.Int
		wantErr bool
	}{
		{name: "hex", in: "0x80", want: big.NewInt(128)},
		{name: "hex upper prefix", in: "0X1F", want: big.NewInt(31)},
		{name: "hex leading zeros", in: "0x0000000000000000000000000000000000000000000000000000000000000040", want: big.NewInt(64)},
		{name: "hex zero", in: "0x0", want: big.NewInt(0)},
		{name: "bare prefix", in: "0x", want: big.NewInt(0)},
		{name: "decimal", in: "1234", want: big.NewInt(1234)},
		{name: "decimal 64 digits", in: "1000000000000000000000000000000000000000000000000000000000000000", want: func() *big.Int {
			v, _ := new(big.Int).SetString("1000000000000000000000000000000000000000000000000000000000000000", 10)

			return v
		}()},
		{name: "max", in: "0x" + "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", want: maxWord},
		{name: "overflow", in: "0x1" + "0000000000000000000000000000000000000000000000000000000000000000", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
		{name: "garbage hex", in: "0xzz", wantErr: true},
		{name: "garbage decimal", in: "12ab", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(w.Big()), "got %s", w.String())
		})
	}
}

func TestParseMemoryWord(t *testing.T) {
	w, err := ParseMemoryWord("0000000000000000000000000000000000000000000000000000000000000080")
	require.NoError(t, err)
	assert.Equal(t, WordFromUint64(0x80), w)

	w, err = ParseMemoryWord("0x00000000000000000000000000000000000000000000000000000000000000ff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), w.Uint64())

	_, err = ParseMemoryWord("")
	assert.Error(t, err)

	_, err = ParseMemoryWord("00" + "0000000000000000000000000000000000000000000000000000000000000080")
	assert.Error(t, err)
}

func TestWordValueSemantics(t *testing.T) {
	a := WordFromUint64(5)
	b := a

	assert.Equal(t, a, b)
	assert.True(t, a == b)
	assert.True(t, ZeroWord.IsZero())
	assert.False(t, a.IsZero())

	seen := map[Word]bool{a: true}
	assert.True(t, seen[WordFromUint64(5)])

	// mutating a derived *uint256.Int leaves the word untouched
	a.Int().SetUint64(9)
	assert.Equal(t, uint64(5), a.Uint64())
}

func TestWordFromBig(t *testing.T) {
	w, err := WordFromBig(big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, "42", w.String())
	assert.Equal(t, "0x2a", w.Hex())

	_, err = WordFromBig(big.NewInt(-1))
	assert.Error(t, err)

	_, err = WordFromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
}

func TestWordJSON(t *testing.T) {
	w := WordFromUint64(0xdead)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Equal(t, `"0xdead"`, string(data))

	var decoded Word
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, w, decoded)

	require.NoError(t, json.Unmarshal([]byte(`"57005"`), &decoded))
	assert.Equal(t, w, decoded)

	assert.Error(t, json.Unmarshal([]byte(`57005`), &decoded))
}
