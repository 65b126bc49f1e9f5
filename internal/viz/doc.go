// Package viz renders a live terminal view of a running lazyfall server.
//
// The watch view polls the server over HTTP at a fixed frame rate. Every
// poll is a real query, so watched bodies keep falling while bodies that
// are not on screen stay frozen.
//
// # Key Bindings
//
//	Space - Pause/Resume polling
//	J/K   - Select next/previous body
//	T     - Cycle color themes
//	Q     - Quit
package viz
