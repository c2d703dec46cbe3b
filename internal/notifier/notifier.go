// Package notifier pushes engine events to external channels. The
// lifecycle manager treats a nil notifier as "off".
package notifier

// TextNotifier delivers a plain-text message.
type TextNotifier interface {
	SendText(text string) error
}
