// Package notify forwards resolution events to operator chat channels
// (Telegram, Discord). Events can be filtered by type so operators receive
// only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events whose type is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify formats ev and sends it to every sender, unless its type is
// filtered out.
func (n *Notifier) Notify(ctx context.Context, ev domain.ResolutionEvent) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(ev.Type)),
		)
		return nil
	}

	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form notification regardless of event filters.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Format renders ev as a title and a short plain-text body.
func Format(ev domain.ResolutionEvent) (string, string) {
	var b strings.Builder
	var title string

	switch ev.Type {
	case domain.EventMarketResolved:
		title = fmt.Sprintf("Market #%d resolved %s", ev.MarketID, ev.Outcome)
		fmt.Fprintf(&b, "mechanism: %s\nconfidence: %.2f", ev.Mechanism, ev.Confidence)
		if ev.OnChain {
			fmt.Fprintf(&b, "\ntx: %s", ev.TxHash)
		} else {
			b.WriteString("\noff-chain")
		}
	case domain.EventResolutionFallback:
		title = fmt.Sprintf("Market #%d fell back to off-chain resolution", ev.MarketID)
		if ev.TxHash != "" {
			fmt.Fprintf(&b, "tx: %s\n", ev.TxHash)
		}
		b.WriteString(ev.Detail)
	case domain.EventChallengeFiled:
		title = fmt.Sprintf("Challenge filed on market #%d", ev.MarketID)
		b.WriteString(ev.Detail)
	default:
		title = fmt.Sprintf("%s: market #%d", ev.Type, ev.MarketID)
		b.WriteString(ev.Detail)
	}

	return title, strings.TrimSpace(b.String())
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the others; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
