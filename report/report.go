package report

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Report is the structured outcome of a cluster operation. Multi-node and
// multi-step operations attach one child per node or step, so callers get a
// full per-node breakdown even when some of the work failed.
//
// A report is never modified once the operation that produced it has
// returned; the receiving caller owns it exclusively.
type Report struct {
	// OperationID is set on roots only, one fresh id per invocation.
	OperationID string `json:"operationId,omitempty"`

	Name      string    `json:"name"`
	Succeeded bool      `json:"succeeded"`
	Detail    string    `json:"detail,omitempty"`
	Optional  bool      `json:"optional,omitempty"`
	Children  []*Report `json:"children,omitempty"`
}

// NewOperation creates the root report for a top-level operation.
func NewOperation(name string) *Report {
	return &Report{
		OperationID: uuid.NewString(),
		Name:        name,
		Succeeded:   true,
	}
}

// Success creates a succeeded leaf report.
func Success(name string, detail string) *Report {
	return &Report{Name: name, Succeeded: true, Detail: detail}
}

// Failure creates a failed leaf report.
func Failure(name string, detail string) *Report {
	return &Report{Name: name, Succeeded: false, Detail: detail}
}

// FromError creates a leaf report whose outcome follows err.
func FromError(name string, detail string, err error) *Report {
	if err != nil {
		if detail != "" {
			return Failure(name, fmt.Sprintf("%s: %s", detail, err))
		}
		return Failure(name, err.Error())
	}
	return Success(name, detail)
}

// Add attaches a required child. A failed required child fails this report.
func (r *Report) Add(child *Report) *Report {
	r.Children = append(r.Children, child)
	if !child.Succeeded && !child.Optional {
		r.Succeeded = false
	}
	return child
}

// AddOptional attaches a best-effort child whose failure does not propagate
// to this report.
func (r *Report) AddOptional(child *Report) *Report {
	child.Optional = true
	r.Children = append(r.Children, child)
	return child
}

// Fail marks the report failed, keeping any existing detail.
func (r *Report) Fail(detail string) {
	r.Succeeded = false
	if r.Detail == "" {
		r.Detail = detail
	}
}

// Child returns the first direct child with the given name, or nil.
func (r *Report) Child(name string) *Report {
	for _, c := range r.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Find returns the first report in the tree with the given name, or nil.
func (r *Report) Find(name string) *Report {
	if r.Name == name {
		return r
	}
	for _, c := range r.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// String renders the tree as an indented per-step breakdown.
func (r *Report) String() string {
	var sb strings.Builder
	r.write(&sb, 0)
	return sb.String()
}

func (r *Report) write(sb *strings.Builder, depth int) {
	mark := "ok"
	if !r.Succeeded {
		mark = "FAIL"
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("[%s] %s", mark, r.Name))
	if r.Detail != "" {
		detail := r.Detail
		if idx := strings.IndexByte(detail, '\n'); idx >= 0 {
			detail = detail[:idx] + " ..."
		}
		sb.WriteString(": " + detail)
	}
	sb.WriteString("\n")
	for _, c := range r.Children {
		c.write(sb, depth+1)
	}
}
