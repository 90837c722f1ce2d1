package agent

import (
	"github.com/cloudwego/eino/schema"
)

// Tool names the planner model may call. The model routes each user turn by
// either calling one of these or answering directly.
const (
	toolGetCategories = "get_categories"
	toolUpdateCart    = "update_cart"
)

// plannerTools returns the tool schemas bound to the planner model. The
// configured category list is embedded in the get_categories description so
// the model picks from real values.
func plannerTools(categories []string) []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: toolGetCategories,
			Desc: "Call this when the user is looking for products. Extract one self-contained " +
				"search query per product the user mentions, and pick the matching categories " +
				"from the available list: " + joinCategories(categories),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"relevant_categories": {
					Type: schema.Array,
					Desc: "Categories from the available list that match the request.",
					ElemInfo: &schema.ParameterInfo{
						Type: schema.String,
					},
					Required: true,
				},
				"search_entities": {
					Type: schema.Array,
					Desc: "One standalone search query per product mentioned, rewritten to include " +
						"any attributes (color, style, occasion) the user stated.",
					ElemInfo: &schema.ParameterInfo{
						Type: schema.String,
					},
					Required: true,
				},
			}),
		},
		{
			Name: toolUpdateCart,
			Desc: "Call this when the user wants to add products to their cart, remove products, " +
				"empty the cart, or see what is in it.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"action": {
					Type:     schema.String,
					Desc:     "One of: add, remove, clear, view.",
					Enum:     []string{"add", "remove", "clear", "view"},
					Required: true,
				},
				"items": {
					Type: schema.Array,
					Desc: "The products the action applies to. Empty for clear and view.",
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"name": {
								Type:     schema.String,
								Desc:     "Product name.",
								Required: true,
							},
							"quantity": {
								Type: schema.Integer,
								Desc: "How many. Defaults to 1.",
							},
							"price": {
								Type: schema.Number,
								Desc: "Unit price if known from earlier search results.",
							},
						},
					},
				},
			}),
		},
	}
}

// joinCategories formats the category list for embedding in a tool
// description.
func joinCategories(categories []string) string {
	out := ""
	for i, c := range categories {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	if out == "" {
		return "(none configured)"
	}
	return out
}
