// Package history bounds per-turn context by folding old turns into a
// running summary pair kept at the head of the message log.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

// SummarySentinel is the human-side text of the summary pair. Kept for
// display parity; the session's Summarized flag is the authoritative marker.
const SummarySentinel = "Summary of our conversation so far."

const (
	// DefaultThresholdTurns is the turn count above which compaction runs.
	DefaultThresholdTurns = 10
	// DefaultKeepTurns is how many trailing turns survive a compaction
	// verbatim.
	DefaultKeepTurns = 4

	casRetries = 3
)

// Summarizer condenses a slice of messages into one summary text.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []store.Message) (string, error)
}

// CompactorConfig holds compaction tuning knobs.
type CompactorConfig struct {
	// ThresholdTurns is the turn count that triggers compaction (default 10).
	ThresholdTurns int
	// KeepTurns is the number of trailing turns kept verbatim (default 4).
	KeepTurns int
}

// Compactor rewrites session logs through the store's versioned replace.
type Compactor struct {
	store      store.Store
	summarizer Summarizer
	threshold  int
	keep       int
}

// NewCompactor creates a compactor over the given store and summarizer.
func NewCompactor(s store.Store, summarizer Summarizer, cfg CompactorConfig) *Compactor {
	threshold := cfg.ThresholdTurns
	if threshold <= 0 {
		threshold = DefaultThresholdTurns
	}
	keep := cfg.KeepTurns
	if keep <= 0 {
		keep = DefaultKeepTurns
	}
	return &Compactor{
		store:      s,
		summarizer: summarizer,
		threshold:  threshold,
		keep:       keep,
	}
}

// SplitTurns partitions messages into turns. A turn ends at each AI message;
// a trailing run without an AI message still counts as one (partial) turn.
func SplitTurns(msgs []store.Message) [][]store.Message {
	var turns [][]store.Message
	var buf []store.Message
	for _, m := range msgs {
		buf = append(buf, m)
		if m.Role == store.RoleAI {
			turns = append(turns, buf)
			buf = nil
		}
	}
	if len(buf) > 0 {
		turns = append(turns, buf)
	}
	return turns
}

// HasSummaryPair reports whether the session's log starts with a summary
// pair. The Summarized flag decides; sentinel text is the legacy fallback.
func HasSummaryPair(sess *store.Session) bool {
	if len(sess.Messages) < 2 {
		return false
	}
	human, ai := sess.Messages[0], sess.Messages[1]
	if human.Role != store.RoleHuman || ai.Role != store.RoleAI {
		return false
	}
	if sess.Summarized {
		return true
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(human.Content)), "summary of our conversation")
}

// Consolidate compacts the session's log when it exceeds the turn threshold.
// Idempotent: below the threshold it is a cheap no-op. A rewrite that races
// a concurrent append is retried against a fresh snapshot.
func (c *Compactor) Consolidate(ctx context.Context, threadID string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		err := c.consolidateOnce(ctx, threadID)
		if errors.Is(err, store.ErrVersionConflict) {
			log.Printf("[history] compaction conflict on %s, retrying", threadID)
			continue
		}
		if err != nil {
			observability.RecordCompaction("error", 0)
			return err
		}
		return nil
	}
	observability.RecordCompaction("conflict", 0)
	return fmt.Errorf("compaction for %s: %w", threadID, store.ErrVersionConflict)
}

func (c *Compactor) consolidateOnce(ctx context.Context, threadID string) error {
	sess, err := c.store.FindByThreadID(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	existingSummary := ""
	startIdx := 0
	if HasSummaryPair(sess) {
		existingSummary = sess.Messages[1].Content
		startIdx = 2
	}

	working := sess.Messages[startIdx:]
	turns := SplitTurns(working)
	if len(turns) <= c.threshold {
		return nil
	}

	tail := flatten(turns[len(turns)-c.keep:])
	olderTurns := turns[:len(turns)-c.keep]
	older := flatten(olderTurns)

	// A previous summary joins the older messages so nothing is lost
	// across successive compactions.
	if strings.TrimSpace(existingSummary) != "" {
		older = append([]store.Message{{Role: store.RoleAI, Content: existingSummary}}, older...)
	}

	summary, err := c.summarizer.Summarize(ctx, older)
	if err != nil || strings.TrimSpace(summary) == "" {
		// Without a usable summary the rewrite would destroy history.
		// Keep the log as is; the next turn tries again.
		log.Printf("[history] summarization failed for %s, skipping rewrite: %v", threadID, err)
		observability.RecordCompaction("skipped", 0)
		return nil
	}

	rewritten := make([]store.Message, 0, 2+len(tail))
	rewritten = append(rewritten,
		store.Message{Role: store.RoleHuman, Content: SummarySentinel},
		store.Message{Role: store.RoleAI, Content: summary},
	)
	rewritten = append(rewritten, tail...)

	if err := c.store.ReplaceMessages(ctx, threadID, sess.Version, rewritten, true); err != nil {
		return err
	}

	observability.RecordCompaction("ok", len(olderTurns))
	log.Printf("[history] compacted %s: %d turns folded, %d kept", threadID, len(olderTurns), c.keep)
	return nil
}

// BuildContext assembles the model-facing message list for one turn: the
// summary pair if present, the remaining human/ai history, then the new
// user message. The result is never persisted.
func BuildContext(sess *store.Session, newUserMsg string) ([]provider.Message, bool) {
	var ctx []provider.Message
	summaryPresent := false

	var msgs []store.Message
	if sess != nil {
		msgs = sess.Messages
	}

	idx := 0
	if sess != nil && HasSummaryPair(sess) {
		ctx = append(ctx,
			provider.Message{Role: "user", Content: msgs[0].Content},
			provider.Message{Role: "assistant", Content: msgs[1].Content},
		)
		idx = 2
		summaryPresent = true
	}

	for _, m := range msgs[idx:] {
		switch m.Role {
		case store.RoleHuman:
			ctx = append(ctx, provider.Message{Role: "user", Content: m.Content})
		case store.RoleAI:
			ctx = append(ctx, provider.Message{Role: "assistant", Content: m.Content})
		}
		// Tool messages stay out of the model context; their content is
		// already reflected in the AI replies that follow them.
	}

	ctx = append(ctx, provider.Message{Role: "user", Content: newUserMsg})
	return ctx, summaryPresent
}

func flatten(turns [][]store.Message) []store.Message {
	var out []store.Message
	for _, t := range turns {
		out = append(out, t...)
	}
	return out
}
