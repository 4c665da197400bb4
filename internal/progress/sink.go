package progress

import "context"

// Sink receives flushed batches of events from the Hub. Consume runs on the
// hub's collection goroutine; implementations honor ctx deadlines and
// tolerate being called again after returning an error.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is the write side of the hub. Workers and the batch coordinator
// hold an Emitter so they never see buffering or sink wiring.
type Emitter interface {
	Emit(evt Event)
}
