package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// newProgress returns a step counter drawn on w. Steps are labelled as they
// start.
func newProgress(w io.Writer, steps int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

// stepper advances bar once per named step.
func stepper(bar *progressbar.ProgressBar, prefix string) func(string) {
	first := true
	return func(step string) {
		if !first {
			_ = bar.Add(1)
		}
		first = false
		bar.Describe(prefix + ": " + step)
	}
}
