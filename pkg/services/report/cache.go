package report

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pay-tools/tx-relay/pkg/models/domain"
)

// Cache memoizes report results per range fingerprint. Entries expire lazily
// on read after the TTL; the janitor sweep only bounds memory held by one-off
// custom-range queries. Nothing is persisted across restarts.
type Cache interface {
	Get(fingerprint string) (domain.ReportResult, bool)
	Put(fingerprint string, result domain.ReportResult)
	Len() int
}

type reportCache struct {
	entries *gocache.Cache
}

func NewCache(ttl, sweepInterval time.Duration) Cache {
	return &reportCache{entries: gocache.New(ttl, sweepInterval)}
}

func (c *reportCache) Get(fingerprint string) (domain.ReportResult, bool) {
	v, ok := c.entries.Get(fingerprint)
	if !ok {
		return domain.ReportResult{}, false
	}
	return v.(domain.ReportResult), true
}

func (c *reportCache) Put(fingerprint string, result domain.ReportResult) {
	c.entries.SetDefault(fingerprint, result)
}

func (c *reportCache) Len() int {
	return c.entries.ItemCount()
}
