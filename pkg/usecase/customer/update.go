package customer

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/validate"
)

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=2000"`
	Products    *[]string `json:"products,omitempty" validate:"omitempty,max=50,dive,required,max=100"`
	Priority    *string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Notes       *string   `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

// Update applies input to the customer called name. An update with no
// fields is rejected with model.ErrInvalidArgument.
func (u *UseCase) Update(ctx context.Context, name string, input UpdateInput) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "customer name is required")
	}
	if input.Name != nil {
		v := strings.TrimSpace(*input.Name)
		input.Name = &v
	}
	if input.Priority != nil {
		v := strings.ToLower(strings.TrimSpace(*input.Priority))
		input.Priority = &v
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	update := &model.CustomerUpdate{
		Name:        input.Name,
		Description: input.Description,
		Notes:       input.Notes,
	}
	if input.Products != nil {
		products := model.NormalizeSet(*input.Products)
		update.Products = &products
	}
	if input.Priority != nil {
		priority, err := model.ParsePriority(*input.Priority)
		if err != nil {
			return nil, err
		}
		update.Priority = &priority
	}
	if update.IsEmpty() {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "update has no fields", goerr.V("name", name))
	}

	return u.repo.UpdateCustomer(ctx, name, update)
}
