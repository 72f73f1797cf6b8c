package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// AttemptID records the charge attempt identifier under the key "attempt_id".
func AttemptID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("attempt_id", id)
}

func FanID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("fan_id", id)
}

func CreatorID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("creator_id", id)
}

// Transition records a state change as "from" and "to" under the key "transition".
func Transition(from, to string) slog.Attr {
	return Group("transition", slog.String("from", from), slog.String("to", to))
}

// State records a lifecycle state under the key "state".
func State(s string) slog.Attr {
	return slog.String("state", s)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Intent records a side effect kind under the key "intent".
func Intent(kind string) slog.Attr {
	return slog.String("intent", kind)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count records a counter under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}
