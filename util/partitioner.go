package util

import (
	"strconv"

	"github.com/buraksezer/consistent"
	"github.com/spaolacci/murmur3"
)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type partition string

func (p partition) String() string {
	return string(p)
}

// Partitioner maps keys onto a fixed number of partitions with a consistent
// hash ring so the same key always lands on the same partition.
type Partitioner struct {
	hring *consistent.Consistent
	index map[string]int
	count int
}

func NewPartitioner(count int) *Partitioner {
	if count < 1 {
		count = 1
	}
	cfg := consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	hr := consistent.New(nil, cfg)
	index := make(map[string]int, count)
	for i := 0; i < count; i++ {
		name := "partition-" + strconv.Itoa(i)
		hr.Add(partition(name))
		index[name] = i
	}
	return &Partitioner{
		hring: hr,
		index: index,
		count: count,
	}
}

func (p *Partitioner) Count() int {
	return p.count
}

// Partition returns the partition index in [0, Count()) owning key.
func (p *Partitioner) Partition(key string) int {
	member := p.hring.LocateKey([]byte(key))
	if member == nil {
		return 0
	}
	return p.index[member.String()]
}
