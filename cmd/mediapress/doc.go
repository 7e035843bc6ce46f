// Command mediapress is the CLI for the mediapress daemon: it submits media
// files, inspects and watches tasks, and manages configuration.
package main
