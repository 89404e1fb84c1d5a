package achievement

import (
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// Rank orders stats by earnings descending and assigns competition ranks:
// tied players share the rank of the first of them and the next distinct
// earnings value skips past the tie. Inside a tie players are ordered by
// address. The input slice is sorted in place and returned.
func Rank(stats []types.PlayerStats) []types.PlayerStats {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Earnings != stats[j].Earnings {
			return stats[i].Earnings > stats[j].Earnings
		}
		return stats[i].Player < stats[j].Player
	})

	for i := range stats {
		if i > 0 && stats[i].Earnings == stats[i-1].Earnings {
			stats[i].Rank = stats[i-1].Rank
			continue
		}
		stats[i].Rank = i + 1
	}
	return stats
}

// Find returns the stats of one player in a ranked list
func Find(stats []types.PlayerStats, player types.AddressKey) (types.PlayerStats, bool) {
	for _, s := range stats {
		if s.Player == player {
			return s, true
		}
	}
	return types.PlayerStats{}, false
}
