package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeNode       EventType = "node"
	EventTypeTransition EventType = "transition"
	EventTypePlan       EventType = "plan"
	EventTypeStep       EventType = "step"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypePolicy     EventType = "policy_check"
	EventTypeSuspend    EventType = "suspend"
	EventTypeResume     EventType = "resume"
	EventTypeWarning    EventType = "warning"
	EventTypeError      EventType = "error"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Node      string    `json:"node,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits one JSON event per line. LLM exchanges are additionally
// appended to a rotated file because they are too large for the console.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewWriterLogger logs to w only; LLM exchanges are not written to disk.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Nop discards every event.
func Nop() *Logger {
	return NewWriterLogger(io.Discard)
}

// WithLLMLog sets the file receiving LLM exchanges.
func (l *Logger) WithLLMLog(path string) *Logger {
	l.llmLogPath = path
	if l.maxSize == 0 {
		l.maxSize = 10 * 1024 * 1024
	}
	return l
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTransition(threadID, from, to string, transitions int) {
	l.Log(Event{
		Type:     EventTypeTransition,
		ThreadID: threadID,
		Node:     from,
		Data:     map[string]any{"to": to, "transitions": transitions},
	})
}

func (l *Logger) LogNode(threadID, node, msg string) {
	l.Log(Event{
		Type:     EventTypeNode,
		ThreadID: threadID,
		Node:     node,
		Data:     map[string]string{"message": msg},
	})
}

func (l *Logger) LogPlan(threadID, title string, steps int, hasEnoughContext bool) {
	l.Log(Event{
		Type:     EventTypePlan,
		ThreadID: threadID,
		Node:     "planner",
		Data: map[string]any{
			"title":              title,
			"steps":              steps,
			"has_enough_context": hasEnoughContext,
		},
	})
}

func (l *Logger) LogStep(threadID, executor, title, status string) {
	l.Log(Event{
		Type:     EventTypeStep,
		ThreadID: threadID,
		Node:     executor,
		Data:     map[string]string{"title": title, "status": status},
	})
}

func (l *Logger) LogToolCall(threadID, executor, tool, args string) {
	l.Log(Event{
		Type:     EventTypeToolCall,
		ThreadID: threadID,
		Node:     executor,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogPolicy(threadID, executor, tool, effect, reason string) {
	l.Log(Event{
		Type:     EventTypePolicy,
		ThreadID: threadID,
		Node:     executor,
		Data:     map[string]string{"tool": tool, "effect": effect, "reason": reason},
	})
}

func (l *Logger) LogSuspend(threadID, node string) {
	l.Log(Event{Type: EventTypeSuspend, ThreadID: threadID, Node: node, Data: map[string]string{"status": "awaiting feedback"}})
}

func (l *Logger) LogResume(threadID, node, token string) {
	l.Log(Event{Type: EventTypeResume, ThreadID: threadID, Node: node, Data: map[string]string{"token": token}})
}

func (l *Logger) LogWarning(threadID, node, msg string) {
	l.Log(Event{Type: EventTypeWarning, ThreadID: threadID, Node: node, Data: map[string]string{"message": msg}})
}

func (l *Logger) LogError(threadID, node string, err error) {
	l.Log(Event{Type: EventTypeError, ThreadID: threadID, Node: node, Data: map[string]string{"error": err.Error()}})
}

func (l *Logger) LogLLM(threadID, node string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:     EventTypeLLM,
		ThreadID: threadID,
		Node:     node,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
