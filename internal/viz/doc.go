// Package viz renders box-model runs in the terminal.
//
//   - [Plot]: line charts of concentration series
//   - [BackendTable]: solver backend availability
//   - [Model]: a Bubble Tea view that steps a run live
//
// # Key Bindings
//
//	Space - Pause/Resume
//	Tab   - Cycle the plotted species
//	R     - Restart from the initial box
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Quit
package viz
