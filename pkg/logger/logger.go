package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stdlib logger with a component prefix for bootstrap
// paths that run before the structured logger exists.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
