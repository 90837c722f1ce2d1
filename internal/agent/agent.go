// Package agent wires the Eino chat model, the product retriever, and the
// cart store into the conversational shopping assistant. Each user turn is
// routed by the planner model: it either calls the search tool, calls the
// cart tool, or answers directly.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/shopgenie-go/internal/budget"
	"github.com/54b3r/shopgenie-go/internal/cart"
	"github.com/54b3r/shopgenie-go/internal/logging"
	"github.com/54b3r/shopgenie-go/internal/retrieval"
)

// systemPrompt establishes the assistant persona injected into every
// conversation.
const systemPrompt = `You are ShopGenie, a friendly and knowledgeable shopping assistant for an
online fashion and lifestyle store. You help customers find products, compare
options, and manage their shopping cart.

How you work:
- When a customer describes something they want to buy, call the
  get_categories tool. Split multi-item requests into one standalone search
  query per product, carrying over the attributes the customer stated.
- When a customer wants to add to, remove from, view, or empty their cart,
  call the update_cart tool.
- For greetings, questions about the store, or anything that is not a product
  search or cart operation, answer directly in a warm, concise tone.

Rules:
- Never invent products. Only present products that came back from a search.
- Keep replies short. Customers are shopping, not reading essays.
- If the customer's request is ambiguous, ask one clarifying question rather
  than guessing.`

// apologyReply is returned when the retrieval backend fails after retries,
// so the customer gets a usable answer instead of an error page.
const apologyReply = "I encountered an error while searching for products. Please try again."

// verifySimilarity is the strict minimum similarity for accepting that a
// cart item names a real catalog product.
const verifySimilarity = 0.8

// contextRolePrefix separates the role tag from the text in persisted
// conversation context entries.
const contextRolePrefix = ": "

// summaryPrompt drives context compaction. Product details must survive the
// summary or the assistant forgets what it already recommended.
const summaryPrompt = `You are a conversation summarizer for a shopping assistant.

Rewrite the conversation below as a single compact summary. You MUST keep:
- every product name the customer asked about or was shown, with all of its
  stated attributes (materials, care instructions, prices, colors, sizes)
- the customer's specific requirements and cart changes

You may condense greetings, conversational filler, and repeated phrasing.
Never drop or shorten product specifications to save space. Reply with the
summary only.`

// Searcher runs a product retrieval for the agent.
type Searcher interface {
	// Search fans queries (plus an optional image) out over the catalog,
	// restricted to the given categories.
	Search(ctx context.Context, queries []string, image string, categories []string) (*retrieval.Results, error)
}

// retrieverSearcher adapts retrieval.Retriever to the Searcher interface.
type retrieverSearcher struct {
	r *retrieval.Retriever
}

func (s retrieverSearcher) Search(ctx context.Context, queries []string, image string, categories []string) (*retrieval.Results, error) {
	return s.r.RetrieveIn(ctx, queries, image, categories, 0)
}

// NewRetrieverSearcher wraps a retrieval.Retriever as a Searcher.
func NewRetrieverSearcher(r *retrieval.Retriever) Searcher {
	return retrieverSearcher{r: r}
}

// Config holds the dependencies required to construct a ShoppingAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Searcher runs product retrievals. Must not be nil.
	Searcher Searcher

	// Cart is the optional cart store. If nil, cart operations are declined.
	Cart cart.Store

	// Categories is the full configured category list, used as the fallback
	// when the planner's category selection cannot be parsed.
	Categories []string

	// MaxContextTokens is the estimated token budget for the conversation
	// context injected per turn. Defaults to budget.DefaultMaxContextTokens
	// if zero.
	MaxContextTokens int
}

// ShoppingAgent answers customer chat turns, searching the catalog and
// managing carts on their behalf.
type ShoppingAgent struct {
	// planModel is the chat model with the planner tools bound.
	planModel model.ToolCallingChatModel

	// chatModel is the unbound chat model, used for phrasing and summaries.
	chatModel model.ToolCallingChatModel

	// searcher runs product retrievals.
	searcher Searcher

	// cartStore persists carts and conversation context. May be nil.
	cartStore cart.Store

	// categories is the full configured category list.
	categories []string

	// maxContextTokens bounds the injected conversation context.
	maxContextTokens int
}

// New constructs a ShoppingAgent from the provided Config.
func New(cfg *Config) (*ShoppingAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("agent: Searcher must not be nil")
	}

	planModel, err := cfg.ChatModel.WithTools(plannerTools(cfg.Categories))
	if err != nil {
		return nil, fmt.Errorf("agent: failed to bind planner tools: %w", err)
	}

	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &ShoppingAgent{
		planModel:        planModel,
		chatModel:        cfg.ChatModel,
		searcher:         cfg.Searcher,
		cartStore:        cfg.Cart,
		categories:       cfg.Categories,
		maxContextTokens: maxCtx,
	}, nil
}

// Chat handles one user turn: the planner model routes it, the matching
// handler produces a reply, and the turn is persisted to the user's
// conversation context.
func (a *ShoppingAgent) Chat(ctx context.Context, userID, message, image string) (*Response, error) {
	log := logging.FromContext(ctx)

	// An image with no text skips the planner: it is always a search.
	if strings.TrimSpace(message) == "" && image != "" {
		resp := a.handleSearch(ctx, &SearchPlan{RelevantCategories: a.categories}, image)
		a.persistTurn(ctx, userID, "[image]", resp.Text)
		return resp, nil
	}

	messages := a.buildMessages(ctx, userID, message)

	planResp, err := a.planModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("agent: planner generate failed: %w", err)
	}

	var resp *Response
	switch {
	case len(planResp.ToolCalls) > 0 && planResp.ToolCalls[0].Function.Name == toolGetCategories:
		plan, perr := parseSearchPlan(planResp.ToolCalls[0].Function.Arguments)
		if perr != nil {
			// Unparseable plan: search the raw message across every
			// configured category rather than failing the turn.
			log.Warn("agent: falling back to full category list", slog.Any("error", perr))
			plan = &SearchPlan{
				RelevantCategories: a.categories,
				SearchEntities:     []string{message},
			}
		}
		if len(plan.RelevantCategories) == 0 {
			plan.RelevantCategories = a.categories
		}
		resp = a.handleSearch(ctx, plan, image)

	case len(planResp.ToolCalls) > 0 && planResp.ToolCalls[0].Function.Name == toolUpdateCart:
		action, perr := parseCartAction(planResp.ToolCalls[0].Function.Arguments)
		if perr != nil {
			log.Warn("agent: unparseable cart action", slog.Any("error", perr))
			resp = &Response{Text: "I couldn't work out what to change in your cart. Could you rephrase that?"}
			break
		}
		resp = a.handleCart(ctx, userID, action)

	default:
		// No tool call: the model answered directly.
		resp = &Response{Text: planResp.Content}
	}

	a.persistTurn(ctx, userID, message, resp.Text)
	return resp, nil
}

// handleSearch runs the retrieval and phrases a reply around the hits.
// Retrieval failures produce the apology reply rather than an error.
func (a *ShoppingAgent) handleSearch(ctx context.Context, plan *SearchPlan, image string) *Response {
	log := logging.FromContext(ctx)

	results, err := a.searcher.Search(ctx, plan.SearchEntities, image, plan.RelevantCategories)
	if err != nil {
		log.Warn("agent: product search failed", slog.Any("error", err))
		return &Response{Text: apologyReply}
	}
	if results.Len() == 0 {
		return &Response{Text: "I couldn't find any products matching your request. Could you describe what you're looking for differently?"}
	}

	return &Response{
		Text:     a.phraseResults(ctx, plan, results),
		Products: productSet(results),
	}
}

// phraseResults asks the chat model to present the hits conversationally,
// falling back to a plain listing when the model call fails.
func (a *ShoppingAgent) phraseResults(ctx context.Context, plan *SearchPlan, results *retrieval.Results) string {
	var sb strings.Builder
	for i := range results.IDs {
		fmt.Fprintf(&sb, "- %s\n", results.Names[i])
	}

	prompt := fmt.Sprintf(
		"The customer searched for: %s\nThese products matched:\n%s\n"+
			"Present them in one or two friendly sentences. Mention every product by name. Do not invent details.",
		strings.Join(plan.SearchEntities, "; "), sb.String())

	reply, err := a.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil || reply.Content == "" {
		logging.FromContext(ctx).Warn("agent: phrasing failed, using plain listing", slog.Any("error", err))
		return "Here's what I found:\n" + sb.String()
	}
	return reply.Content
}

// handleCart applies a cart action. Additions and removals are verified
// against the catalog first so the cart only ever holds real products.
func (a *ShoppingAgent) handleCart(ctx context.Context, userID string, action *CartAction) *Response {
	log := logging.FromContext(ctx)

	if a.cartStore == nil {
		return &Response{Text: "Cart support isn't available right now."}
	}

	switch action.Action {
	case "view":
		items, err := a.cartStore.Items(ctx, userID)
		if err != nil {
			log.Warn("agent: cart read failed", slog.Any("error", err))
			return &Response{Text: "I couldn't read your cart just now. Please try again."}
		}
		if len(items) == 0 {
			return &Response{Text: "Your cart is empty."}
		}
		var sb strings.Builder
		sb.WriteString("Here's what's in your cart:\n")
		for _, it := range items {
			fmt.Fprintf(&sb, "- %s ×%d\n", it.Name, it.Quantity)
		}
		return &Response{Text: sb.String()}

	case "clear":
		if err := a.cartStore.ClearCart(ctx, userID); err != nil {
			log.Warn("agent: cart clear failed", slog.Any("error", err))
			return &Response{Text: "I couldn't empty your cart just now. Please try again."}
		}
		return &Response{Text: "Done, your cart is empty."}

	case "add":
		return a.handleCartAdd(ctx, userID, action.Items)

	case "remove":
		return a.handleCartRemove(ctx, userID, action.Items)

	default:
		return &Response{Text: "I couldn't work out what to change in your cart. Could you rephrase that?"}
	}
}

// resolveCatalogName searches the catalog for the user's phrasing and
// returns the verified catalog name. ok is false when the top hit does not
// score strictly above verifySimilarity.
func (a *ShoppingAgent) resolveCatalogName(ctx context.Context, name string) (string, bool, error) {
	results, err := a.searcher.Search(ctx, []string{name}, "", a.categories)
	if err != nil {
		return "", false, err
	}
	if results.Len() == 0 || !(results.Similarities[0] > verifySimilarity) {
		return "", false, nil
	}
	return results.Names[0], true, nil
}

// handleCartAdd verifies each item names a real catalog product before
// adding it. An item is accepted when the top search hit for its name scores
// strictly above verifySimilarity.
func (a *ShoppingAgent) handleCartAdd(ctx context.Context, userID string, items []CartActionItem) *Response {
	log := logging.FromContext(ctx)

	var added, unknown []string
	for _, item := range items {
		name, ok, err := a.resolveCatalogName(ctx, item.Name)
		if err != nil {
			log.Warn("agent: cart verification search failed", slog.String("item", item.Name), slog.Any("error", err))
			return &Response{Text: apologyReply}
		}
		if !ok {
			unknown = append(unknown, item.Name)
			continue
		}

		// Store the verified catalog name, not the user's phrasing.
		if err := a.cartStore.AddItem(ctx, userID, name, item.Quantity, item.Price); err != nil {
			log.Warn("agent: cart add failed", slog.String("item", name), slog.Any("error", err))
			return &Response{Text: "I couldn't update your cart just now. Please try again."}
		}
		added = append(added, name)
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "Added "+strings.Join(added, ", ")+" to your cart.")
	}
	if len(unknown) > 0 {
		parts = append(parts, "I couldn't find "+strings.Join(unknown, ", ")+" in our catalog.")
	}
	if len(parts) == 0 {
		return &Response{Text: "I didn't see any items to add. What would you like?"}
	}
	return &Response{Text: strings.Join(parts, " ")}
}

// handleCartRemove mirrors handleCartAdd: the user's phrasing is resolved to
// the verified catalog name before the removal, so "the red dress" removes
// the same row "Red Dress" that an add created.
func (a *ShoppingAgent) handleCartRemove(ctx context.Context, userID string, items []CartActionItem) *Response {
	log := logging.FromContext(ctx)

	var removed, unknown []string
	for _, item := range items {
		name, ok, err := a.resolveCatalogName(ctx, item.Name)
		if err != nil {
			log.Warn("agent: cart verification search failed", slog.String("item", item.Name), slog.Any("error", err))
			return &Response{Text: apologyReply}
		}
		if !ok {
			unknown = append(unknown, item.Name)
			continue
		}

		if err := a.cartStore.RemoveItem(ctx, userID, name, item.Quantity); err != nil {
			log.Warn("agent: cart remove failed", slog.String("item", name), slog.Any("error", err))
			return &Response{Text: "I couldn't update your cart just now. Please try again."}
		}
		removed = append(removed, name)
	}

	var parts []string
	if len(removed) > 0 {
		parts = append(parts, "Removed "+strings.Join(removed, ", ")+" from your cart.")
	}
	if len(unknown) > 0 {
		parts = append(parts, "I couldn't find "+strings.Join(unknown, ", ")+" in our catalog.")
	}
	if len(parts) == 0 {
		return &Response{Text: "I didn't see any items to remove. What would you like?"}
	}
	return &Response{Text: strings.Join(parts, " ")}
}

// buildMessages assembles the planner input: system prompt, trimmed
// conversation context, and the current user message.
func (a *ShoppingAgent) buildMessages(ctx context.Context, userID, message string) []*schema.Message {
	log := logging.FromContext(ctx)

	var history []*schema.Message
	if a.cartStore != nil {
		entries, err := a.cartStore.Context(ctx, userID)
		if err != nil {
			log.Warn("agent: failed to load conversation context", slog.Any("error", err))
		} else {
			for _, e := range entries {
				role, text, found := strings.Cut(e, contextRolePrefix)
				if !found {
					continue
				}
				switch role {
				case "user":
					history = append(history, schema.UserMessage(text))
				case "assistant":
					history = append(history, schema.AssistantMessage(text, nil))
				}
			}
		}
	}

	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(message),
	}

	before := len(history)
	history = budget.TrimHistory(fixed, history, a.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		log.Warn("budget: dropped context messages to fit window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	result := make([]*schema.Message, 0, len(history)+2)
	result = append(result, schema.SystemMessage(systemPrompt))
	result = append(result, history...)
	result = append(result, schema.UserMessage(message))
	return result
}

// persistTurn appends the user message and assistant reply to the user's
// conversation context. Persistence failures are non-fatal.
func (a *ShoppingAgent) persistTurn(ctx context.Context, userID, message, reply string) {
	if a.cartStore == nil {
		return
	}
	log := logging.FromContext(ctx)
	if err := a.cartStore.AppendContext(ctx, userID, "user"+contextRolePrefix+message); err != nil {
		log.Warn("agent: failed to persist user message", slog.Any("error", err))
	}
	if err := a.cartStore.AppendContext(ctx, userID, "assistant"+contextRolePrefix+reply); err != nil {
		log.Warn("agent: failed to persist assistant reply", slog.Any("error", err))
	}
	a.compactContext(ctx, userID)
}

// compactContext collapses the persisted conversation into one summary entry
// once its estimated size exceeds the context budget. On any failure the raw
// entries are left in place; TrimHistory still bounds the planner input.
func (a *ShoppingAgent) compactContext(ctx context.Context, userID string) {
	log := logging.FromContext(ctx)

	entries, err := a.cartStore.Context(ctx, userID)
	if err != nil {
		log.Warn("agent: failed to load context for compaction", slog.Any("error", err))
		return
	}
	total := 0
	for _, e := range entries {
		total += budget.Estimate(e)
	}
	if len(entries) < 2 || total <= a.maxContextTokens {
		return
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e)
		sb.WriteByte('\n')
	}
	reply, err := a.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(summaryPrompt),
		schema.UserMessage("CONVERSATION TO SUMMARIZE:\n" + sb.String()),
	})
	if err != nil || reply.Content == "" {
		log.Warn("agent: context summarization failed", slog.Any("error", err))
		return
	}

	summary := "assistant" + contextRolePrefix + "Summary of the conversation so far: " + reply.Content
	if err := a.cartStore.ReplaceContext(ctx, userID, []string{summary}); err != nil {
		log.Warn("agent: failed to replace context with summary", slog.Any("error", err))
		return
	}
	log.Info("agent: compacted conversation context",
		slog.Int("entries", len(entries)),
		slog.Int("estimated_tokens", total),
	)
}

// productSet converts retrieval results into the API response shape.
func productSet(r *retrieval.Results) *ProductSet {
	return &ProductSet{
		Texts:        r.Texts,
		IDs:          r.IDs,
		Similarities: r.Similarities,
		Names:        r.Names,
		Images:       r.Images,
	}
}
