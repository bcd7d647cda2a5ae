package memengine

import "github.com/blite-io/blite-server/internal/engine"

// changeBufferSize bounds each subscriber's channel. A slow subscriber
// falls behind and has its oldest pending event dropped rather than
// blocking the writer that produced it (spec.md §5's embedding populator
// note: change capture is best-effort, not a durable log).
const changeBufferSize = 256

func (e *Engine) SubscribeChange(collection string) (<-chan engine.ChangeEvent, func()) {
	ch := make(chan engine.ChangeEvent, changeBufferSize)
	e.subsMu.Lock()
	e.subs[collection] = append(e.subs[collection], ch)
	e.subsMu.Unlock()

	cancel := func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		subs := e.subs[collection]
		for i, c := range subs {
			if c == ch {
				e.subs[collection] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

func (e *Engine) publish(ev engine.ChangeEvent) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs[ev.Collection] {
		select {
		case ch <- ev:
		default:
			// drop-oldest: make room and retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
