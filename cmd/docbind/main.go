// Command docbind renders DOCX templates from JSON or YAML data.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benjaminschreck/go-docbind/pkg/docbind"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

// Exit codes: 2 for bad template or data input, 3 when a file or archive could not be
// read or written, 1 otherwise.
const (
	exitFailure     = 1
	exitInvalidData = 2
	exitDocument    = 3
)

func exitCode(err error) int {
	switch {
	case docbind.IsValidationError(err), docbind.IsParseError(err),
		docbind.IsTemplateError(err), docbind.IsEvaluationError(err):
		return exitInvalidData
	case docbind.IsDocumentError(err):
		return exitDocument
	default:
		return exitFailure
	}
}
