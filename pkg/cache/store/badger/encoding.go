package badger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marmos91/nearstore/pkg/cache"
)

// Key layout:
//
//	Data Type     Prefix   Key Format                   Value Type
//	==============================================================
//	Cache Entry   "e:"     e:<tenant>/<checksum>        Entry (JSON)
//
// Tenant names never contain "/", so a tenant prefix scan never matches
// another tenant's keys. Checksums sort lexically within a tenant, which is
// what keyset paging relies on.
const prefixEntry = "e:"

func keyEntry(tenant, checksum string) []byte {
	return []byte(prefixEntry + tenant + "/" + checksum)
}

func keyTenantPrefix(tenant string) []byte {
	return []byte(prefixEntry + tenant + "/")
}

// checksumFromKey strips the tenant prefix.
func checksumFromKey(prefix, key []byte) string {
	return strings.TrimPrefix(string(key), string(prefix))
}

func encodeEntry(e *cache.Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*cache.Entry, error) {
	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &e, nil
}
