package logging

import (
	"fmt"
	"io"
	"time"
)

// EarlyLog reports startup failures that happen before the structured logger exists.
type EarlyLog struct {
	w       io.Writer
	service string
}

func NewEarlyLog(w io.Writer, service string) *EarlyLog {
	return &EarlyLog{w: w, service: service}
}

func (l *EarlyLog) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, "%s\tERROR\t%s\t%s\n",
		time.Now().UTC().Format(time.RFC3339), l.service, fmt.Sprintf(format, args...))
}
