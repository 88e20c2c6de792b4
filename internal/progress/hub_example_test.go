package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/news-downloader/internal/crawler"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{
		BatchID: UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:      time.Unix(0, 0),
		Stage:   StageBatchStart,
		Total:   3,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink that counts blocked pages.
func ExampleSink() {
	blocked := 0
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageURLDone && evt.Status == crawler.StatusBlocked {
				blocked++
			}
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	hub.Emit(Event{
		BatchID: UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000002")),
		TS:      time.Unix(0, 0),
		Stage:   StageURLDone,
		URL:     "https://news.example/interactive/x",
		Site:    "news.example",
		Status:  crawler.StatusBlocked,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("blocked pages: %d\n", blocked)
	// Output:
	// blocked pages: 1
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
