package audit

import "context"

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func NewNopPublisher() NopPublisher { return NopPublisher{} }

func (NopPublisher) Publish(context.Context, Event) {}
func (NopPublisher) Close()                         {}
