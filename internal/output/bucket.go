// Package output re-groups a run's synthesized gaps by datestamp and
// writes one compressed file per day, optionally delivering it to S3.
package output

import (
	"sort"
	"sync"

	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

// Bucket accumulates gaps keyed by datestamp as they're produced, so no
// single day's file is opened until the run is ready to flush. Grounded on
// the keyed-accumulation shape of exporter.PartitionedBuffer, simplified: a
// batch run's whole day's output fits comfortably in memory.
type Bucket struct {
	mu   sync.Mutex
	days map[string][][]byte
}

// NewBucket returns an empty Bucket.
func NewBucket() *Bucket {
	return &Bucket{days: make(map[string][][]byte)}
}

// Add files a gap's payload under its datestamp.
func (b *Bucket) Add(g reconcile.Gap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.days[g.Datestamp] = append(b.days[g.Datestamp], g.Payload)
}

// AddAll files every gap in gaps.
func (b *Bucket) AddAll(gaps []reconcile.Gap) {
	for _, g := range gaps {
		b.Add(g)
	}
}

// Datestamps returns the bucket's datestamps in sorted order.
func (b *Bucket) Datestamps() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.days))
	for d := range b.days {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Payloads returns the payloads filed under datestamp, in insertion order.
func (b *Bucket) Payloads(datestamp string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.days[datestamp]...)
}
