package customer

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
)

var priorities = []string{
	string(model.PriorityLow),
	string(model.PriorityMedium),
	string(model.PriorityHigh),
}

func manage() []model.Intent {
	return []model.Intent{model.IntentCustomerManagement}
}

func lookup() []model.Intent {
	return []model.Intent{model.IntentCustomerManagement, model.IntentImpactAnalysis}
}

func nameArg() *jsonschema.Schema {
	return tool.String("Exact customer name")
}

func result(c *model.Customer) (map[string]any, error) {
	return tool.Encode(map[string]any{"customer": c})
}

// Create is the create_customer capability.
type Create struct {
	uc *customeruc.UseCase
}

func NewCreate(uc *customeruc.UseCase) *Create {
	return &Create{uc: uc}
}

func (c *Create) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "create_customer",
		Description: "Create a customer profile. Names are unique.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"name":        nameArg(),
			"description": tool.String("What the customer does"),
			"products":    tool.StringArray("Microsoft 365 products the customer uses"),
			"priority":    tool.String("Account priority (default: medium)", priorities...),
			"notes":       tool.String("Free-form notes"),
		}, "name"),
	}
}

func (c *Create) Intents() []model.Intent {
	return manage()
}

func (c *Create) Mutating() bool {
	return true
}

func (c *Create) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input customeruc.CreateInput
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}
	created, err := c.uc.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return result(created)
}

// Get is the get_customer capability.
type Get struct {
	uc *customeruc.UseCase
}

func NewGet(uc *customeruc.UseCase) *Get {
	return &Get{uc: uc}
}

func (g *Get) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "get_customer",
		Description: "Get a customer profile by name.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"name": nameArg(),
		}, "name"),
	}
}

func (g *Get) Intents() []model.Intent {
	return lookup()
}

func (g *Get) Mutating() bool {
	return false
}

func (g *Get) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Name string `json:"name"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}
	c, err := g.uc.Get(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	return result(c)
}

// List is the list_customers capability.
type List struct {
	uc *customeruc.UseCase
}

func NewList(uc *customeruc.UseCase) *List {
	return &List{uc: uc}
}

func (l *List) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "list_customers",
		Description: "List all customer profiles ordered by name.",
		Parameters:  tool.Object(nil),
	}
}

func (l *List) Intents() []model.Intent {
	return lookup()
}

func (l *List) Mutating() bool {
	return false
}

func (l *List) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	customers, err := l.uc.List(ctx)
	if err != nil {
		return nil, err
	}
	return tool.Encode(map[string]any{
		"count":     len(customers),
		"customers": customers,
	})
}

// Update is the update_customer capability.
type Update struct {
	uc *customeruc.UseCase
}

func NewUpdate(uc *customeruc.UseCase) *Update {
	return &Update{uc: uc}
}

func (u *Update) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "update_customer",
		Description: "Change fields of an existing customer. Only the given fields are changed.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"name":        nameArg(),
			"new_name":    tool.String("Rename the customer"),
			"description": tool.String("What the customer does"),
			"products":    tool.StringArray("Replaces the product list"),
			"priority":    tool.String("Account priority", priorities...),
			"notes":       tool.String("Replaces the notes"),
		}, "name"),
	}
}

func (u *Update) Intents() []model.Intent {
	return manage()
}

func (u *Update) Mutating() bool {
	return true
}

func (u *Update) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Name        string    `json:"name"`
		NewName     *string   `json:"new_name"`
		Description *string   `json:"description"`
		Products    *[]string `json:"products"`
		Priority    *string   `json:"priority"`
		Notes       *string   `json:"notes"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}

	updated, err := u.uc.Update(ctx, input.Name, customeruc.UpdateInput{
		Name:        input.NewName,
		Description: input.Description,
		Products:    input.Products,
		Priority:    input.Priority,
		Notes:       input.Notes,
	})
	if err != nil {
		return nil, err
	}
	return result(updated)
}

// Delete is the delete_customer capability.
type Delete struct {
	uc *customeruc.UseCase
}

func NewDelete(uc *customeruc.UseCase) *Delete {
	return &Delete{uc: uc}
}

func (d *Delete) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "delete_customer",
		Description: "Delete a customer profile.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"name": nameArg(),
		}, "name"),
	}
}

func (d *Delete) Intents() []model.Intent {
	return manage()
}

func (d *Delete) Mutating() bool {
	return true
}

func (d *Delete) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Name string `json:"name"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}
	if err := d.uc.Delete(ctx, input.Name); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": input.Name}, nil
}
