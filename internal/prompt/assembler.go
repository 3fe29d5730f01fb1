// Package prompt assembles the message list sent to a chat model for one
// turn: system prompt (with retrieved context when the agent has RAG
// assets), prior history, then the new user turn.
package prompt

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aifoundry/aifoundry/server/internal/rag"
	"github.com/aifoundry/aifoundry/server/internal/store"
	"github.com/aifoundry/aifoundry/server/pkg/contracts"
	"github.com/aifoundry/aifoundry/server/pkg/models"
)

// ContextPlaceholder is replaced by the retrieved context in a RAG system prompt.
const ContextPlaceholder = "{context}"

// DefaultOutputFormat is used when a request names no output format.
const DefaultOutputFormat = "text"

// Assembler builds prompts. It is safe for concurrent use.
type Assembler struct {
	agents    store.AgentStore
	assets    store.EmbeddingAssetStore
	source    rag.EmbeddingSource
	retriever contracts.Retriever
}

func NewAssembler(agents store.AgentStore, assets store.EmbeddingAssetStore, source rag.EmbeddingSource, retriever contracts.Retriever) *Assembler {
	return &Assembler{agents: agents, assets: assets, source: source, retriever: retriever}
}

// Build returns the ordered messages for a new turn of session. session may
// be nil for a first turn. The agent must exist.
func (a *Assembler) Build(ctx context.Context, agentID string, session *models.ChatSession, text string, files []models.ChatFile, outputFormat string) ([]models.ChatMessage, error) {
	agent, err := a.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	system := agent.SystemPrompt
	if len(agent.RAGAssetIDs) > 0 {
		retrieved, err := a.retrieve(ctx, agent.RAGAssetIDs, text)
		if err != nil {
			return nil, err
		}
		system = strings.ReplaceAll(ragSystemPrompt(agent.SystemPrompt, outputFormat), ContextPlaceholder, retrieved)
	}

	msgs := []models.ChatMessage{{Role: models.MessageSystem, Content: system}}
	if session != nil {
		msgs = append(msgs, history(session.Turns)...)
	}
	msgs = append(msgs, userMessage(text, files))
	return msgs, nil
}

// ragSystemPrompt extends the agent's prompt with an output directive and a
// strict grounding instruction ending in the context placeholder.
func ragSystemPrompt(systemPrompt, outputFormat string) string {
	if outputFormat == "" {
		outputFormat = DefaultOutputFormat
	}
	var sb strings.Builder
	if systemPrompt != "" {
		sb.WriteString(systemPrompt)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "Format your answer as %s.\n", outputFormat)
	sb.WriteString("Answer only from the context below. If the context does not contain the answer, say that you don't know.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(ContextPlaceholder)
	return sb.String()
}

// retrieve takes the best match of each asset, in asset order, joined by newlines.
func (a *Assembler) retrieve(ctx context.Context, assetIDs []string, query string) (string, error) {
	matches := make([]string, len(assetIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range assetIDs {
		g.Go(func() error {
			asset, err := a.assets.GetEmbeddingAsset(gctx, id)
			if err != nil {
				return err
			}
			emb, err := a.source.EmbeddingDriver(gctx, asset.ModelURI)
			if err != nil {
				return fmt.Errorf("asset %s: %w", id, err)
			}
			docs, err := a.retriever.SimilaritySearch(gctx, emb, asset.VectorStore, asset.ID, query, 1)
			if err != nil {
				return fmt.Errorf("asset %s: %w", id, err)
			}
			if len(docs) > 0 {
				matches[i] = docs[0].Content
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	log.Debug().Int("assets", len(assetIDs)).Msg("Retrieved RAG context")
	return strings.Join(matches, "\n"), nil
}

// history replays prior turns as text-only messages.
func history(turns []models.ChatTurn) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(turns))
	for i := range turns {
		role := models.MessageUser
		if turns[i].Role == models.RoleAssistant {
			role = models.MessageAssistant
		}
		out = append(out, models.ChatMessage{Role: role, Content: turns[i].Text()})
	}
	return out
}

// userMessage builds the new turn. Image attachments become data-URL parts;
// text attachments are inlined; anything else is dropped.
func userMessage(text string, files []models.ChatFile) models.ChatMessage {
	msg := models.ChatMessage{Role: models.MessageUser, Content: text}
	if len(files) == 0 {
		return msg
	}

	parts := []models.ContentPart{{Type: "text", Text: text}}
	for i := range files {
		f := &files[i]
		switch {
		case f.IsImage():
			parts = append(parts, models.ContentPart{
				Type: "image_url",
				ImageURL: &models.ImageURL{
					URL:    "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data),
					Detail: "auto",
				},
			})
		case strings.HasPrefix(f.ContentType, "text/"):
			parts = append(parts, models.ContentPart{Type: "text", Text: fmt.Sprintf("%s:\n%s", f.Name, f.Data)})
		default:
			log.Debug().Str("file", f.Name).Str("content_type", f.ContentType).Msg("Skipping unsupported attachment")
		}
	}
	msg.ContentParts = parts
	return msg
}
