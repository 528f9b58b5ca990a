// Package translate consumes translation jobs and turns executor output
// into overlay ops.
//
// The executor is an external model-calling service consumed over HTTP. Its
// output is never trusted: every response is checked for exact path
// coverage, placeholder preservation, and richtext structure before any
// overlay write, and any violation fails the whole job.
package translate
