package auth

import (
	"context"

	"chemviz-client-go/internal/apiclient"
	"chemviz-client-go/internal/domain/eventbus"
)

// Publisher receives session lifecycle events.
type Publisher interface {
	Publish(topic string, data eventbus.SessionEventData)
}

// EventHooks forwards the client's refresh outcomes to events as
// session:refreshed and session:expired.
func EventHooks(events Publisher, namespace string) apiclient.Hooks {
	if events == nil {
		return apiclient.Hooks{}
	}
	return apiclient.Hooks{
		OnSessionExpired: func(_ context.Context, ev apiclient.SessionExpired) {
			events.Publish(eventbus.EventSessionExpired, eventbus.SessionEventData{
				Namespace:  namespace,
				Reason:     ev.Reason,
				LoginRoute: ev.LoginRoute,
				At:         ev.At,
			})
		},
		OnTokenRefreshed: func(_ context.Context, ev apiclient.TokenRefreshed) {
			events.Publish(eventbus.EventSessionRefreshed, eventbus.SessionEventData{
				Namespace: namespace,
				At:        ev.At,
			})
		},
	}
}
