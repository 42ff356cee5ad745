package cmd

import (
	"math/rand"

	"github.com/libp2p/go-libp2p/core/peer"
)

// sampleProviders picks n distinct entries from providers at random,
// mirroring the original CLI's "choose_multiple" provider selection for
// split and combine. If n >= len(providers) the full (shuffled) slice is
// returned.
func sampleProviders(providers []peer.AddrInfo, n int) []peer.AddrInfo {
	if n >= len(providers) {
		n = len(providers)
	}
	shuffled := make([]peer.AddrInfo, len(providers))
	copy(shuffled, providers)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}
