package report

import (
	"github.com/basilfx/go-lostik/pingpong"
)

// Multi hands every event to each reporter, in order.
type Multi []pingpong.Reporter

// Report implements pingpong.Reporter.
func (m Multi) Report(event pingpong.Event) {
	for _, r := range m {
		r.Report(event)
	}
}
