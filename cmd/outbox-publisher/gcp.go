package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// gcpPublisher adapts *pubsub.Publisher to the publisher interface.
type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func newGCPPublisher(pub *gcppubsub.Publisher) publisher {
	if pub == nil {
		return nil
	}
	// Ordering keys are only honoured when enabled on the publisher itself.
	pub.EnableMessageOrdering = true
	return &gcpPublisher{pub: pub}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.pub.Publish(ctx, msg)
}

func (g *gcpPublisher) ResumePublish(orderingKey string) {
	g.pub.ResumePublish(orderingKey)
}

// Stop flushes pending messages and releases the publisher's goroutines.
func (g *gcpPublisher) Stop() {
	g.pub.Stop()
}
