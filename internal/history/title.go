package history

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/hashtalk-dev/hashtalk/internal/llm/provider"
	"github.com/hashtalk-dev/hashtalk/pkg/store"
)

// TitleGenerator replaces the default session title with a short generated
// one. Best effort: every failure is logged and swallowed so a title can
// never break a chat turn.
type TitleGenerator struct {
	store    store.Store
	provider provider.Provider
	model    string
}

// NewTitleGenerator creates a title generator.
func NewTitleGenerator(s store.Store, p provider.Provider, model string) *TitleGenerator {
	return &TitleGenerator{store: s, provider: p, model: model}
}

// MaybeGenerate sets a generated title if the session still carries the
// default one and holds at least one human and one AI message.
func (g *TitleGenerator) MaybeGenerate(ctx context.Context, threadID string) {
	sess, err := g.store.FindByThreadID(ctx, threadID)
	if err != nil {
		log.Printf("[title] load session %s: %v", threadID, err)
		return
	}
	if sess.Title != store.DefaultTitle {
		return
	}

	var hasHuman, hasAI bool
	for _, m := range sess.Messages {
		switch m.Role {
		case store.RoleHuman:
			hasHuman = true
		case store.RoleAI:
			hasAI = true
		}
	}
	if !hasHuman || !hasAI {
		return
	}

	var convo []string
	for i, m := range sess.Messages {
		if i >= 2 {
			break
		}
		convo = append(convo, fmt.Sprintf("%s: %s", roleLabel(m.Role), m.Content))
	}

	resp, err := g.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Model: g.model,
		Messages: []provider.Message{
			{Role: "system", Content: "You are an assistant that creates very short chat titles."},
			{Role: "user", Content: "Read the conversation below and give a concise 4 or 5 word title.\n\n" +
				strings.Join(convo, "\n") + "\nOnly give the title and not any extra word."},
		},
	})
	if err != nil {
		log.Printf("[title] generation failed for %s: %v", threadID, err)
		return
	}

	title := strings.Trim(resp.Content, "\" ")
	if title == "" {
		return
	}

	if err := g.store.SetTitle(ctx, threadID, title); err != nil {
		log.Printf("[title] save failed for %s: %v", threadID, err)
	}
}

func roleLabel(r store.Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
