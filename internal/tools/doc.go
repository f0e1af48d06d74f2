// Package tools holds host helpers exposed to plugins, currently command
// execution.
package tools
