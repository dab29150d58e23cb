// Package types holds the value types shared between the book compiler, the
// execution tools and the executor: parameter values and model requirements.
package types
