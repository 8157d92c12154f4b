// Package gateway connects chat platforms to the workflow engine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/rahul/planflow/internal/workflow"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start listens for messages until ctx is done
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Workflow is the part of the engine a gateway drives.
type Workflow interface {
	Run(ctx context.Context, threadID, input string) (*workflow.Result, error)
	Resume(ctx context.Context, threadID, token string) (*workflow.Result, error)
	Get(ctx context.Context, threadID string) (*workflow.State, error)
}

// Handler turns chat messages into Run or Resume calls. Each chat is one
// thread named "<platform>:<chat id>".
type Handler struct {
	Engine   Workflow
	Platform string
}

// ThreadID returns the thread of a chat.
func (h *Handler) ThreadID(chatID string) string {
	return h.Platform + ":" + chatID
}

// SplitThreadID returns the platform and chat id of a thread.
func SplitThreadID(threadID string) (platform, chatID string, ok bool) {
	return strings.Cut(threadID, ":")
}

// Handle processes one incoming message and returns the reply.
func (h *Handler) Handle(ctx context.Context, chatID, text string) string {
	threadID := h.ThreadID(chatID)

	var (
		res *workflow.Result
		err error
	)
	st, getErr := h.Engine.Get(ctx, threadID)
	if getErr == nil && st.Status == workflow.StatusSuspended {
		token, ok := Token(text)
		if !ok {
			return reviewHint
		}
		res, err = h.Engine.Resume(ctx, threadID, token)
	} else {
		res, err = h.Engine.Run(ctx, threadID, text)
	}

	switch {
	case errors.Is(err, workflow.ErrThreadBusy):
		return "I'm still working on your previous request."
	case err != nil:
		log.Printf("Error handling message for %s: %v", threadID, err)
		return "I'm having trouble thinking right now..."
	}
	return FormatResult(res)
}

const reviewHint = "A plan is waiting for your review. Reply /accept to run it, or /edit <changes> to revise it."

var acceptWords = map[string]bool{
	"/accept": true, "accept": true, "yes": true, "y": true, "ok": true, "okay": true, "approve": true,
}

// Token maps a reply to a pending plan onto a feedback token. Accept words
// and /accept accept the plan, /edit <changes> and any other free text ask
// for a revision. ok is false when the reply carries no usable feedback,
// such as a bare "no" or an /edit without changes.
func Token(text string) (token string, ok bool) {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(strings.TrimRight(t, ".!"))
	switch {
	case t == "":
		return "", false
	case acceptWords[lower]:
		return workflow.TokenAccepted, true
	case strings.HasPrefix(lower, "/edit"):
		changes := strings.TrimSpace(t[len("/edit"):])
		if changes == "" {
			return "", false
		}
		return workflow.TokenEditPlan + " " + changes, true
	case lower == "n" || lower == "no":
		return "", false
	case workflow.ValidFeedback(t):
		return t, true
	}
	return workflow.TokenEditPlan + " " + t, true
}

// FormatResult renders a run outcome as chat text.
func FormatResult(res *workflow.Result) string {
	switch res.Status {
	case workflow.StatusSuspended:
		if res.Suspension == nil || res.Suspension.Plan == nil {
			return reviewHint
		}
		p := res.Suspension.Plan
		var b strings.Builder
		fmt.Fprintf(&b, "📋 Plan: %s\n\n", p.Title)
		if p.Thought != "" {
			fmt.Fprintf(&b, "%s\n\n", p.Thought)
		}
		for i, s := range p.Steps {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, s.Title, s.StepType)
		}
		b.WriteString("\nReply /accept to run it, or /edit <changes> to revise it.")
		return b.String()
	case workflow.StatusCompleted:
		if res.FinalReport != "" {
			return res.FinalReport
		}
		return res.Reply
	default:
		return res.Reply
	}
}

// Router sends thread notifications to the gateway owning the thread.
type Router map[string]Messenger

func (r Router) Send(threadID, text string) error {
	platform, chatID, ok := SplitThreadID(threadID)
	if !ok {
		return fmt.Errorf("thread %s has no platform", threadID)
	}
	m, ok := r[platform]
	if !ok {
		return fmt.Errorf("no gateway for platform %s", platform)
	}
	return m.Send(chatID, text)
}

// Notify delivers a result produced outside a chat exchange, such as a
// recovered run.
func (r Router) Notify(res *workflow.Result) {
	if err := r.Send(res.ThreadID, FormatResult(res)); err != nil {
		log.Printf("Error notifying %s: %v", res.ThreadID, err)
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
