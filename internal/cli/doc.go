// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates flags into session options that are layered over the options
// read from configuration files.
package cli
