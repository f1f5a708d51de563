package main

import (
	"math/rand"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces out polls: none after a productive batch, the poll interval
// after an empty one and a doubling backoff after failures.
type pacer struct {
	poll    time.Duration
	backoff time.Duration
	jitter  func(n int64) int64
}

func newPacer(poll time.Duration) *pacer {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &pacer{poll: poll, jitter: rnd.Int63n}
}

func (p *pacer) next(handled int, failed bool) time.Duration {
	if !failed {
		p.backoff = 0
		if handled > 0 {
			return 0
		}
		return p.withJitter(p.poll)
	}
	if p.backoff == 0 {
		p.backoff = p.poll
	}
	p.backoff = min(p.backoff*2, maxBackoff)
	return p.withJitter(p.backoff)
}

func (p *pacer) withJitter(d time.Duration) time.Duration {
	return d + time.Duration(p.jitter(int64(jitterWindow)))
}
