package quote

import (
	"time"

	"github.com/yanun0323/errors"
)

var ErrBadWindowBounds = errors.New("invalid trading window bounds")

const windowLayout = "15:04"

// Window is the intraday span in which new quotes may be placed. Outside of
// it submission is suppressed and at the stop everything resting is pulled.
type Window struct {
	open  int // minutes since midnight
	close int
}

// NewWindow parses "HH:MM" bounds into a trading window.
func NewWindow(open, close string) (Window, error) {
	o, err := time.Parse(windowLayout, open)
	if err != nil {
		return Window{}, errors.Wrap(err, "parse window open")
	}
	c, err := time.Parse(windowLayout, close)
	if err != nil {
		return Window{}, errors.Wrap(err, "parse window close")
	}
	w := Window{
		open:  o.Hour()*60 + o.Minute(),
		close: c.Hour()*60 + c.Minute(),
	}
	if w.open >= w.close {
		return Window{}, errors.Wrapf(ErrBadWindowBounds, "open %s, close %s", open, close)
	}
	return w, nil
}

// Contains reports whether now falls inside the quoting window.
func (w Window) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	return m >= w.open && m < w.close
}

// Closed reports whether now is at or past the window stop.
func (w Window) Closed(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	return m >= w.close
}
