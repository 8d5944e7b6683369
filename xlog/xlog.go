// Package xlog is the shared error-logging helper both cmd/rdtsend and
// cmd/raftreplica use to report a top-level error, adapted directly from
// the pack's dnsproxy command's stackTracer-unwrapping main().
package xlog

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Fatal logs err at error level, including its pkg/errors stack trace when
// it carries one, and is the last thing a cmd's main should call before
// exiting non-zero.
func Fatal(err error) {
	var st errors.StackTrace
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	if e, ok := err.(stackTracer); ok {
		st = e.StackTrace()
	}
	glog.Errorf("%s%+v\n", err, st)
}
