// Package cmd provides shared construction helpers for the command line
// entrypoints.
package cmd

import (
	"fmt"
	"strings"

	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/persistence/file"
	"github.com/comfychain/comfychain/pkg/persistence/redis"
)

var supportedStoreProviders = []string{"file", "redis", "rediss"}

// NewStore builds a document store from a URL. Redis URLs get the networked
// backend; anything else is treated as a local directory path.
func NewStore(storeURL string) (persistence.Store, error) {
	switch parseStoreProvider(storeURL) {
	case "redis", "rediss":
		store, err := redis.NewStore(storeURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}

		return store, nil
	default:
		return file.NewStore(storeURL), nil
	}
}

func parseStoreProvider(storeURL string) string {
	parts := strings.Split(storeURL, "://")

	provider := parts[0]
	for _, supported := range supportedStoreProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
