// Package main provides the triage CLI.
//
// Usage:
//
//	triage [flags] <command> [args]
//
// Commands:
//
//	generate - write a synthetic labeled corpus
//	prepare  - fit the vectorizer and label encoders on a corpus
//	train    - train both classifiers on the prepared data
//	predict  - classify one request from the command line
//	serve    - serve predictions over HTTP
//
// Configuration is layered: defaults, a YAML file (--config or
// TRIAGE_CONFIG), .env, then TRIAGE_* environment variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
