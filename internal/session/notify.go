package session

import (
	"fmt"
	"io"
)

// WriterNotifier prints notifications as "Success: ..." and "Error: ..."
// lines.
type WriterNotifier struct {
	Out io.Writer
	Err io.Writer
}

func (n WriterNotifier) Success(msg string) {
	fmt.Fprintf(n.Out, "Success: %s\n", msg)
}

func (n WriterNotifier) Error(msg string) {
	fmt.Fprintf(n.Err, "Error: %s\n", msg)
}
