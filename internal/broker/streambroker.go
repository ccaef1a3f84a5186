package broker

type publishContent[TID comparable, TPayload any] struct {
	ID      TID
	Payload TPayload
}

type subscribeContent[TID comparable, TPayload any] struct {
	ID      TID
	Channel chan TPayload
}

// StreamBroker fans committed payloads out to every subscriber of the same ID.
//
// It backs the per-session SSE stream: each connected client subscribes to its
// session id and receives the narrative chunks committed after it connected.
// Slow subscribers never block the producer; a payload that does not fit the
// subscriber's buffer is dropped for that subscriber, because the full
// transcript can always be refetched from the store.
type StreamBroker[TID comparable, TPayload any] struct {
	stopChannel        chan struct{}
	publishChannel     chan publishContent[TID, TPayload]
	subscribeChannel   chan subscribeContent[TID, TPayload]
	unsubscribeChannel chan subscribeContent[TID, TPayload]
}

// subscriberBuffer is the per-subscriber channel capacity. One turn produces
// one payload, so a handful of in-flight turns fit comfortably.
const subscriberBuffer = 8

// NewStreamBroker creates a new StreamBroker. Call Start in a goroutine and
// Stop to shut it down.
func NewStreamBroker[TID comparable, TPayload any]() *StreamBroker[TID, TPayload] {
	broker := StreamBroker[TID, TPayload]{
		stopChannel:        make(chan struct{}),
		publishChannel:     make(chan publishContent[TID, TPayload]),
		subscribeChannel:   make(chan subscribeContent[TID, TPayload]),
		unsubscribeChannel: make(chan subscribeContent[TID, TPayload]),
	}
	return &broker
}

// Start listening for publish, subscribe, and unsubscribe events. This function
// blocks until Stop() is called, so it should be called in a goroutine.
func (b *StreamBroker[TID, TPayload]) Start() {
	subscriberLists := map[TID][]chan TPayload{}
	for {
		select {
		case <-b.stopChannel:
			for _, subscribers := range subscriberLists {
				for _, subscriber := range subscribers {
					close(subscriber)
				}
			}
			return

		case subscription := <-b.subscribeChannel:
			subscriberLists[subscription.ID] = append(subscriberLists[subscription.ID], subscription.Channel)

		case subscription := <-b.unsubscribeChannel:
			subscribers := subscriberLists[subscription.ID]
			for i, subscriber := range subscribers {
				if subscriber == subscription.Channel {
					subscriberLists[subscription.ID] = append(subscribers[:i], subscribers[i+1:]...)
					close(subscriber)
					break
				}
			}
			if len(subscriberLists[subscription.ID]) == 0 {
				delete(subscriberLists, subscription.ID)
			}

		case publication := <-b.publishChannel:
			for _, subscriber := range subscriberLists[publication.ID] {
				select {
				case subscriber <- publication.Payload:
				default:
					// Subscriber buffer full; drop rather than block the producer.
				}
			}
		}
	}
}

// Stop the goroutine that handles the broker and close all subscriber channels.
func (b *StreamBroker[TID, TPayload]) Stop() {
	close(b.stopChannel)
}

// Subscribe to payloads published for the given ID. The returned channel is
// closed by Unsubscribe or Stop. Subscribing to a stopped broker returns a
// closed channel.
func (b *StreamBroker[TID, TPayload]) Subscribe(id TID) chan TPayload {
	channel := make(chan TPayload, subscriberBuffer)
	select {
	case b.subscribeChannel <- subscribeContent[TID, TPayload]{ID: id, Channel: channel}:
	case <-b.stopChannel:
		close(channel)
	}
	return channel
}

// Unsubscribe removes the subscription and closes its channel. It is safe to
// call after Stop, when the channel is already closed.
func (b *StreamBroker[TID, TPayload]) Unsubscribe(id TID, channel chan TPayload) {
	select {
	case b.unsubscribeChannel <- subscribeContent[TID, TPayload]{ID: id, Channel: channel}:
	case <-b.stopChannel:
	}
}

// Publish delivers the payload to every current subscriber of the ID. Publishing
// to a stopped broker is a no-op.
func (b *StreamBroker[TID, TPayload]) Publish(id TID, payload TPayload) {
	select {
	case b.publishChannel <- publishContent[TID, TPayload]{ID: id, Payload: payload}:
	case <-b.stopChannel:
	}
}
