package agent

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ControlSignal is a lifecycle instruction sent to a running dispatcher.
type ControlSignal int

const (
	// Stop ends the dispatch loop. Handlers already running finish on their own.
	Stop ControlSignal = iota
)

func (s ControlSignal) String() string {
	switch s {
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// StreamItem is one value from the merged stream. Exactly one field is set.
type StreamItem struct {
	Control *ControlSignal
	Update  *tgbotapi.Update
}

// merge fans control signals and platform updates into a single unbuffered
// stream. Items reach the consumer in the order they arrive at the merge
// point; each source keeps its own order. A closed source simply stops
// contributing. The returned channel is closed once both forwarders exit,
// which happens when ctx is done or both sources are closed.
func merge(ctx context.Context, control <-chan ControlSignal, updates <-chan tgbotapi.Update) <-chan StreamItem {
	out := make(chan StreamItem)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-control:
				if !ok {
					return
				}
				select {
				case out <- StreamItem{Control: &sig}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- StreamItem{Update: &u}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
