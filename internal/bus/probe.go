package bus

import (
	"context"
	"sync"
	"time"
)

// CheckOtherTabs reports whether any other peer answers a Ping within the
// probe window. The window is a hard deadline: a late Pong counts as no
// answer. The temporary Pong subscription is removed exactly once.
func (b *Bus) CheckOtherTabs(ctx context.Context) bool {
	answered := make(chan struct{}, 1)
	sub := b.Subscribe(TypePong, func(Message) {
		select {
		case answered <- struct{}{}:
		default:
		}
	})

	var once sync.Once
	release := func() { once.Do(func() { b.Unsubscribe(sub) }) }
	defer release()

	if !b.Publish(Ping{Timestamp: b.now()}) {
		return false
	}

	timer := time.NewTimer(b.probeWindow)
	defer timer.Stop()

	select {
	case <-answered:
		release()
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
