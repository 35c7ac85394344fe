package customer

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

func (u *UseCase) Get(ctx context.Context, name string) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "customer name is required")
	}
	return u.repo.GetCustomer(ctx, name)
}

// List returns all customers ordered by name.
func (u *UseCase) List(ctx context.Context) ([]*model.Customer, error) {
	return u.repo.ListCustomers(ctx)
}

func (u *UseCase) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return goerr.Wrap(model.ErrInvalidArgument, "customer name is required")
	}
	return u.repo.DeleteCustomer(ctx, name)
}
