// Package notify raises desktop notifications.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// Notifier shows a short message to the local user
type Notifier interface {
	Notify(title, body string) error
}

// Desktop sends notifications through the OS notification center
type Desktop struct {
	// AppIcon is an optional icon path
	AppIcon string
}

// NewDesktop returns a desktop notifier
func NewDesktop() *Desktop {
	return &Desktop{}
}

func (d *Desktop) Notify(title, body string) error {
	if err := beeep.Notify(title, body, d.AppIcon); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// Func adapts a function to Notifier
type Func func(title, body string) error

func (f Func) Notify(title, body string) error {
	return f(title, body)
}
