package agent

// SearchPlan holds the arguments of a get_categories tool call: the
// categories the model judged relevant to the request and the standalone
// search strings it extracted from it.
type SearchPlan struct {
	// RelevantCategories is the subset of configured categories to search in.
	RelevantCategories []string `json:"relevant_categories"`
	// SearchEntities is the list of self-contained product queries, one per
	// item the user asked about.
	SearchEntities []string `json:"search_entities"`
}

// CartAction holds the arguments of an update_cart tool call.
type CartAction struct {
	// Action is one of: add, remove, clear, view.
	Action string `json:"action"`
	// Items is the list of products the action applies to.
	Items []CartActionItem `json:"items,omitempty"`
}

// CartActionItem is one product within a cart action.
type CartActionItem struct {
	// Name is the product name as the user stated it.
	Name string `json:"name"`
	// Quantity is how many to add or remove. Defaults to 1.
	Quantity int `json:"quantity,omitempty"`
	// Price is the unit price when the model knows it from prior results.
	Price float64 `json:"price,omitempty"`
}

// Response is the agent's reply to one chat turn.
type Response struct {
	// Text is the assistant's reply.
	Text string `json:"text"`
	// Products holds the retrieval results backing the reply, when the turn
	// involved a product search.
	Products *ProductSet `json:"products,omitempty"`
}

// ProductSet mirrors the retrieval result shape for API consumers.
type ProductSet struct {
	// Texts holds the stored document text for each hit.
	Texts []string `json:"texts"`
	// IDs holds the product identifier for each hit.
	IDs []string `json:"ids"`
	// Similarities holds the cosine similarity score for each hit.
	Similarities []float32 `json:"similarities"`
	// Names holds the product display name for each hit.
	Names []string `json:"names"`
	// Images holds the stored image reference for each hit.
	Images []string `json:"images"`
}
