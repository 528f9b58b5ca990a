// Command glot is the operator CLI for the localization pipeline. It talks
// to a running glotd over the HTTP API.
package main
