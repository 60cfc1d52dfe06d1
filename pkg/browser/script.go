package browser

import (
	"context"
	"fmt"
	"time"
)

// Action is the synthetic user event a Step dispatches.
type Action int

// Supported actions.
const (
	ActionHover Action = iota
	ActionSelect
)

func (a Action) String() string {
	switch a {
	case ActionHover:
		return "hover"
	case ActionSelect:
		return "select"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Step is one interaction: locate an element, dispatch an event, wait for the
// page to settle, then read whatever the event revealed.
type Step struct {
	// Read inspects the page after Settle. It may be nil.
	Read func(ctx context.Context, s Session) error

	Selector string
	// Value is the option chosen by ActionSelect.
	Value string

	Action Action
	// Index picks among elements matching Selector for ActionHover.
	Index int
	// Settle is how long the page is given to react before Read.
	Settle time.Duration
	// Release moves the pointer back off a hovered element after Read.
	Release bool
}

// Script is an ordered list of steps, applied strictly one after another.
type Script []Step

// Run executes every step in order, stopping at the first failure.
func (sc Script) Run(ctx context.Context, s Session) error {
	for i := range sc {
		if err := sc[i].run(ctx, s); err != nil {
			return fmt.Errorf("step %d/%d (%s %s): %w", i+1, len(sc), sc[i].Action, sc[i].target(), err)
		}
	}
	return nil
}

func (st *Step) target() string {
	if st.Action == ActionSelect {
		return fmt.Sprintf("%s=%s", st.Selector, st.Value)
	}
	return fmt.Sprintf("%s[%d]", st.Selector, st.Index)
}

func (st *Step) run(ctx context.Context, s Session) error {
	switch st.Action {
	case ActionHover:
		if err := s.Hover(ctx, st.Selector, st.Index); err != nil {
			return err
		}
	case ActionSelect:
		if err := s.Select(ctx, st.Selector, st.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported action %s", st.Action)
	}

	if err := Sleep(ctx, st.Settle); err != nil {
		return err
	}
	if st.Read != nil {
		if err := st.Read(ctx, s); err != nil {
			return err
		}
	}
	if st.Release && st.Action == ActionHover {
		return s.Leave(ctx, st.Selector, st.Index)
	}
	return nil
}

// HoverEach builds a script hovering each of the first n elements matching
// selector, reading after each settle and releasing the pointer afterwards.
func HoverEach(selector string, n int, settle time.Duration, read func(ctx context.Context, s Session) error) Script {
	sc := make(Script, 0, n)
	for i := range n {
		sc = append(sc, Step{Action: ActionHover, Selector: selector, Index: i, Settle: settle, Read: read, Release: true})
	}
	return sc
}

// SelectEach builds a script choosing each value of the select element
// matching selector in turn, reading after each settle.
func SelectEach(selector string, values []string, settle time.Duration, read func(ctx context.Context, s Session) error) Script {
	sc := make(Script, 0, len(values))
	for _, v := range values {
		sc = append(sc, Step{Action: ActionSelect, Selector: selector, Value: v, Settle: settle, Read: read})
	}
	return sc
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
