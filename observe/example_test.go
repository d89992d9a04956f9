package observe_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/tokengate/observe"
)

func ExampleMultiSink() {
	var total int
	sink := observe.MultiSink{
		observe.SinkFunc(func(ctx context.Context, rec observe.CallRecord) {
			total += rec.TokensConsumed
		}),
		observe.NopSink(),
	}

	sink.Record(context.Background(), observe.CallRecord{
		Meta:           observe.CallMeta{Operation: "product"},
		TokensConsumed: 15,
		Success:        true,
	})

	fmt.Println(total)
	// Output:
	// 15
}

func ExampleCallMeta_SpanName() {
	fmt.Println(observe.CallMeta{Operation: "bestsellers"}.SpanName())
	// Output:
	// governor.call.bestsellers
}
