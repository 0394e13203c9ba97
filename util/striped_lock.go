package util

import "sync"

// StripedLock hands out one of a fixed set of mutexes per key, so unrelated
// keys rarely contend and no single lock guards everything.
type StripedLock struct {
	stripes []sync.Mutex
}

func NewStripedLock(stripes int) *StripedLock {
	if stripes < 1 {
		stripes = 1
	}
	return &StripedLock{stripes: make([]sync.Mutex, stripes)}
}

func (l *StripedLock) For(key string) *sync.Mutex {
	return &l.stripes[hasher{}.Sum64([]byte(key))%uint64(len(l.stripes))]
}
