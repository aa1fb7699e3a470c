package colors

import "github.com/fatih/color"

// Terminal colors used for request + worker log prefixes.
var (
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
)
