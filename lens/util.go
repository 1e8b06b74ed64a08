package lens

import (
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const ErrorLogPrefix = "!! "

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}

// limitStringLines keeps count lines from the head or tail of s, noting how many were dropped.
func limitStringLines(s string, count int, head bool) string {
	lines := strings.Split(s, "\n")
	if count <= 0 || len(lines) <= count {
		return s
	}
	note := "... " + strconv.Itoa(len(lines)-count) + " more lines"
	if head {
		lines = append(lines[:count:count], note)
	} else {
		lines = append([]string{note}, lines[len(lines)-count:]...)
	}
	return strings.Join(lines, "\n")
}

// joinNonEmpty joins the parts which are not empty.
func joinNonEmpty(sep string, parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		} else if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(p)
	}
	return sb.String()
}
