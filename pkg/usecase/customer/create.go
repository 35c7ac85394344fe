package customer

import (
	"context"
	"strings"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/validate"
)

type CreateInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Products    []string `json:"products" validate:"max=50,dive,required,max=100"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=low medium high"`
	Notes       string   `json:"notes" validate:"max=4000"`
}

// Create stores a new customer. An existing name fails with
// model.ErrDuplicateCustomer and leaves the stored customer untouched.
func (u *UseCase) Create(ctx context.Context, input CreateInput) (*model.Customer, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Priority = strings.ToLower(strings.TrimSpace(input.Priority))
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	priority, err := model.ParsePriority(input.Priority)
	if err != nil {
		return nil, err
	}

	return u.repo.CreateCustomer(ctx, &model.Customer{
		Name:        input.Name,
		Description: input.Description,
		Products:    model.NormalizeSet(input.Products),
		Priority:    priority,
		Notes:       input.Notes,
	})
}
