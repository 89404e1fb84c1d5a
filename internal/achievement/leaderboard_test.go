package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

func TestRank(t *testing.T) {
	tests := []struct {
		name     string
		earnings map[types.AddressKey]uint64
		want     map[types.AddressKey]int
	}{
		{
			name:     "ties share a rank and the next value skips",
			earnings: map[types.AddressKey]uint64{alice: 100, bob: 300, carol: 300, dave: 50},
			want:     map[types.AddressKey]int{alice: 3, bob: 1, carol: 1, dave: 4},
		},
		{
			name:     "all distinct",
			earnings: map[types.AddressKey]uint64{alice: 1, bob: 2, carol: 3},
			want:     map[types.AddressKey]int{alice: 3, bob: 2, carol: 1},
		},
		{
			name:     "everyone tied",
			earnings: map[types.AddressKey]uint64{alice: 0, bob: 0},
			want:     map[types.AddressKey]int{alice: 1, bob: 1},
		},
		{
			name:     "empty",
			earnings: map[types.AddressKey]uint64{},
			want:     map[types.AddressKey]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := make([]types.PlayerStats, 0, len(tt.earnings))
			for p, e := range tt.earnings {
				stats = append(stats, types.PlayerStats{Player: p, Earnings: e})
			}

			ranked := Rank(stats)
			got := make(map[types.AddressKey]int, len(ranked))
			for _, s := range ranked {
				got[s.Player] = s.Rank
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankOrdersTiesByAddress(t *testing.T) {
	ranked := Rank([]types.PlayerStats{
		{Player: carol, Earnings: 300},
		{Player: dave, Earnings: 50},
		{Player: bob, Earnings: 300},
	})

	assert.Equal(t, []types.AddressKey{bob, carol, dave}, []types.AddressKey{ranked[0].Player, ranked[1].Player, ranked[2].Player})
}

func TestFind(t *testing.T) {
	ranked := Rank([]types.PlayerStats{{Player: alice, Earnings: 5}, {Player: bob, Earnings: 9}})

	got, ok := Find(ranked, alice)
	assert.True(t, ok)
	assert.Equal(t, 2, got.Rank)

	_, ok = Find(ranked, carol)
	assert.False(t, ok)
}
