// Package browser drives a headless browser for pages whose data only exists
// after client-side rendering and user interaction.
package browser

import (
	"context"
	"net/http"
	"time"
)

// Session is one open page in a headless browser. A Session is not safe for
// concurrent use; interactions are applied one at a time.
type Session interface {
	// ID identifies the session in logs.
	ID() string

	// SetCookies installs cookies before navigation.
	SetCookies(ctx context.Context, cookies []*http.Cookie) error

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// WaitPresent waits up to timeout for selector to match an element.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error

	// WaitVisible waits up to timeout for selector to match a visible element.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Count returns how many elements match selector.
	Count(ctx context.Context, selector string) (int, error)

	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// Texts returns the rendered text of every element matching selector.
	Texts(ctx context.Context, selector string) ([]string, error)

	// Hover moves the pointer onto the index-th element matching selector.
	Hover(ctx context.Context, selector string, index int) error

	// Leave moves the pointer off the index-th element matching selector.
	Leave(ctx context.Context, selector string, index int) error

	// Options returns the option values of the select element matching selector.
	Options(ctx context.Context, selector string) ([]string, error)

	// Select chooses value in the select element matching selector and fires change.
	Select(ctx context.Context, selector, value string) error

	// Eval runs a JavaScript function expression and returns its string result.
	Eval(ctx context.Context, js string) (string, error)

	// Close releases the page and its browser process.
	Close() error
}

// Launcher opens browser sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}
