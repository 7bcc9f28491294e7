package store

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Factory constructs the MessageStore for a given session key (typically a
// rendering of the Session Identity triple plus direction).
type Factory func(sessionKey string) (MessageStore, error)

// ShardedFactory routes a session key to one of N backing Factory instances
// via rendezvous hashing, so each session consistently lands on the same
// backend instance without a shared writer lock across instances — adding
// or removing a backend only reshuffles the sessions rendezvous-hashed to
// it, not the whole keyspace.
type ShardedFactory struct {
	backends []Factory
	hash     *rendezvous.Rendezvous
	names    []string
}

// NewShardedFactory builds a ShardedFactory over named backend factories.
// Names must be unique; they are the rendezvous node identifiers.
func NewShardedFactory(backends map[string]Factory) (*ShardedFactory, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("store: sharded factory requires at least one backend")
	}
	names := make([]string, 0, len(backends))
	factories := make([]Factory, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	// Stable ordering so rendezvous.New sees a deterministic node set.
	sortStrings(names)
	for _, name := range names {
		factories = append(factories, backends[name])
	}

	hash := rendezvous.New(names, xxhashSum)
	return &ShardedFactory{backends: factories, hash: hash, names: names}, nil
}

func xxhashSum(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Get returns the MessageStore for sessionKey, constructing it via whichever
// backend factory rendezvous-hashing selects.
func (sf *ShardedFactory) Get(sessionKey string) (MessageStore, error) {
	node := sf.hash.Lookup(sessionKey)
	for i, name := range sf.names {
		if name == node {
			return sf.backends[i](sessionKey)
		}
	}
	return nil, fmt.Errorf("store: rendezvous lookup returned unknown node %q", node)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
