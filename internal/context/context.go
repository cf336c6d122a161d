// Package context implements the hierarchical breadcrumb trail that the
// server attaches to every unit of work it performs, independent of
// context.Context cancellation. It is reported through a logrus.FieldLogger
// and, for install-time subprocess output, correlated against the event bus
// by name.
package context

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Status describes the terminal outcome of a Context.
type Status int

// Status values. Warn exists because curtin reports results that do not
// fit the success/failure/skip trichotomy; an unrecognized result string
// is mapped to Warn rather than guessed at.
const (
	StatusSuccess Status = iota
	StatusFailure
	StatusSkip
	StatusWarn
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusSkip:
		return "SKIP"
	case StatusWarn:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus maps a curtin RESULT string onto a Status, defaulting to
// StatusWarn for anything it does not recognize.
func ParseStatus(result string) Status {
	switch strings.ToUpper(result) {
	case "SUCCESS":
		return StatusSuccess
	case "FAILURE", "FAIL":
		return StatusFailure
	case "SKIP":
		return StatusSkip
	default:
		return StatusWarn
	}
}

// Context is one node of the breadcrumb tree. A Context is created with
// Child, reports its own start/finish through the owning app's logger, and
// is safe to read concurrently once created; Exit must only be called by
// the goroutine that owns the Context.
type Context struct {
	name        string
	description string
	parent      *Context
	log         logrus.FieldLogger

	mu     sync.Mutex
	status Status
}

// New creates a root Context. log receives a "context" field set to the
// context's full slash-separated name on every report.
func New(log logrus.FieldLogger, name string) *Context {
	c := &Context{name: name, log: log}
	c.report("start")
	return c
}

// Child creates a new Context nested under c. description is free text
// (e.g. the trimmed request body for an API call) attached for logging
// only; it plays no part in the full name.
func (c *Context) Child(name, description string) *Context {
	child := &Context{
		name:        name,
		description: description,
		parent:      c,
		log:         c.log,
	}
	child.report("start")
	return child
}

// FullName returns the breadcrumb path from the root to c, its names
// joined with "/".
func (c *Context) FullName() string {
	if c.parent == nil {
		return c.name
	}
	return c.parent.FullName() + "/" + c.name
}

// Exit records the terminal status of c and reports it.
func (c *Context) Exit(status Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.report("finish: " + status.String())
}

// Logger returns a FieldLogger annotated with this context's full name,
// for callers that want to emit additional log lines under the same
// breadcrumb.
func (c *Context) Logger() logrus.FieldLogger {
	return c.log.WithField("context", c.FullName())
}

func (c *Context) report(event string) {
	entry := c.log.WithField("context", c.FullName())
	if c.description != "" {
		entry = entry.WithField("description", trim(c.description, 80))
	}
	entry.Debug(event)
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
