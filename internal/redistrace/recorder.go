// Package redistrace records recent Redis commands for debugging.
package redistrace

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLimit is the ring buffer size used when none is given.
const DefaultLimit = 500

const maxArgLength = 200

type originKey struct{}

// Kind describes the type of a recorded entry.
type Kind string

const (
	KindCommand       Kind = "command"
	KindPipelineBegin Kind = "pipeline-begin"
	KindPipelineExec  Kind = "pipeline-exec"
)

// Entry captures a single recorded Redis call.
type Entry struct {
	Seq      uint64        `json:"seq"`
	Time     time.Time     `json:"time"`
	Origin   string        `json:"origin"`
	Kind     Kind          `json:"kind"`
	Command  string        `json:"command,omitempty"`
	Duration time.Duration `json:"durationNs"`
	Error    string        `json:"error,omitempty"`
}

// Recorder keeps the most recent Redis commands in a fixed-size ring buffer.
type Recorder struct {
	limit int
	mu    sync.RWMutex
	log   []Entry
	head  int
	full  bool
	seq   uint64
}

// NewRecorder creates a recorder holding up to limit entries.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{limit: limit}
}

// WithOrigin returns a context carrying the origin label.
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext extracts the origin label from context.
func OriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if origin, ok := ctx.Value(originKey{}).(string); ok {
		return origin
	}
	return ""
}

// Entries returns the recorded entries in chronological order.
func (r *Recorder) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.log) == 0 {
		return []Entry{}
	}
	if !r.full {
		return append([]Entry(nil), r.log...)
	}
	result := make([]Entry, 0, len(r.log))
	result = append(result, r.log[r.head:]...)
	result = append(result, r.log[:r.head]...)
	return result
}

// Append adds an entry, overwriting the oldest once the buffer is full.
func (r *Recorder) Append(entry Entry) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Seq = r.seq
	r.seq++
	if len(r.log) < r.limit {
		r.log = append(r.log, entry)
		if len(r.log) == r.limit {
			r.head = 0
			r.full = true
		}
		return
	}
	r.log[r.head] = entry
	r.head = (r.head + 1) % r.limit
}

// Hook returns a go-redis hook feeding the recorder.
func (r *Recorder) Hook() redis.Hook {
	return hook{recorder: r}
}

type hook struct {
	recorder *Recorder
}

func (h hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(ctx, cmd, time.Since(start))
		return err
	}
}

func (h hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if len(cmds) == 0 {
			return next(ctx, cmds)
		}
		h.marker(ctx, KindPipelineBegin, 0)
		start := time.Now()
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			h.record(ctx, cmd, 0)
		}
		h.marker(ctx, KindPipelineExec, time.Since(start))
		return err
	}
}

func (h hook) record(ctx context.Context, cmd redis.Cmder, duration time.Duration) {
	entry := Entry{Kind: KindCommand, Command: formatCommand(cmd), Duration: duration}
	if err := cmd.Err(); err != nil && err != redis.Nil {
		entry.Error = err.Error()
	}
	h.append(ctx, entry)
}

func (h hook) marker(ctx context.Context, kind Kind, duration time.Duration) {
	h.append(ctx, Entry{Kind: kind, Duration: duration})
}

func (h hook) append(ctx context.Context, entry Entry) {
	if h.recorder == nil {
		return
	}
	origin := OriginFromContext(ctx)
	if origin == "" {
		origin = originFromCallers()
	}
	if origin == "" {
		origin = "unknown"
	}
	entry.Time = time.Now()
	entry.Origin = origin
	h.recorder.Append(entry)
}

// originFromCallers names the first dashboard frame on the stack, falling back
// to the first bullmq frame.
func originFromCallers() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(5, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var backendFallback string
	for {
		frame, more := frames.Next()
		fn := frame.Function
		switch {
		case strings.Contains(fn, "/internal/dashboard."):
			return shortFuncName(fn)
		case backendFallback == "" && strings.Contains(fn, "/internal/bullmq."):
			backendFallback = shortFuncName(fn)
		}
		if !more {
			break
		}
	}
	return backendFallback
}

func shortFuncName(fn string) string {
	if idx := strings.LastIndex(fn, "/"); idx >= 0 {
		fn = fn[idx+1:]
	}
	fn = strings.TrimSuffix(fn, ".func1")
	fn = strings.ReplaceAll(fn, "(*", "")
	fn = strings.ReplaceAll(fn, ")", "")
	return fn
}

// formatCommand renders the command with long arguments (job payloads, Lua
// bodies) shortened.
func formatCommand(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) == 0 {
		return cmd.Name()
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		part := fmt.Sprint(arg)
		if len(part) > maxArgLength {
			part = part[:maxArgLength] + "..."
		}
		parts[i] = part
	}
	return strings.Join(parts, " ")
}
