package customer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
)

func ptr[T any](v T) *T {
	return &v
}

func TestCreate(t *testing.T) {
	uc := customer.New(repository.NewMemory(8))
	ctx := context.Background()

	c, err := uc.Create(ctx, customer.CreateInput{
		Name:     "  Contoso ",
		Products: []string{"Teams", "SharePoint", "teams"},
		Priority: "HIGH",
	})
	gt.NoError(t, err)
	gt.Equal(t, c.Name, "Contoso")
	gt.Equal(t, c.Priority, model.PriorityHigh)
	gt.Equal(t, c.Products, []string{"SharePoint", "Teams"})

	_, err = uc.Create(ctx, customer.CreateInput{Name: "Contoso", Notes: "second"})
	gt.True(t, errors.Is(err, model.ErrDuplicateCustomer))

	got, err := uc.Get(ctx, "Contoso")
	gt.NoError(t, err)
	gt.Equal(t, got.Notes, "")
}

func TestCreateValidation(t *testing.T) {
	uc := customer.New(repository.NewMemory(8))
	ctx := context.Background()

	testCases := map[string]customer.CreateInput{
		"missing name":     {Name: "  "},
		"unknown priority": {Name: "A", Priority: "urgent"},
		"blank product":    {Name: "A", Products: []string{""}},
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Create(ctx, input)
			gt.True(t, errors.Is(err, model.ErrInvalidArgument))
		})
	}

	list, err := uc.List(ctx)
	gt.NoError(t, err)
	gt.A(t, list).Length(0)
}

func TestUpdate(t *testing.T) {
	uc := customer.New(repository.NewMemory(8))
	ctx := context.Background()

	created, err := uc.Create(ctx, customer.CreateInput{Name: "Fabrikam"})
	gt.NoError(t, err)

	updated, err := uc.Update(ctx, "Fabrikam", customer.UpdateInput{
		Priority: ptr("Low"),
		Products: ptr([]string{"Outlook"}),
	})
	gt.NoError(t, err)
	gt.Equal(t, updated.Priority, model.PriorityLow)
	gt.Equal(t, updated.Products, []string{"Outlook"})
	gt.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	_, err = uc.Update(ctx, "Fabrikam", customer.UpdateInput{})
	gt.True(t, errors.Is(err, model.ErrInvalidArgument))

	_, err = uc.Update(ctx, "Fabrikam", customer.UpdateInput{Priority: ptr("urgent")})
	gt.True(t, errors.Is(err, model.ErrInvalidArgument))

	_, err = uc.Update(ctx, "Nobody", customer.UpdateInput{Notes: ptr("x")})
	gt.True(t, errors.Is(err, model.ErrCustomerNotFound))
}

func TestDelete(t *testing.T) {
	uc := customer.New(repository.NewMemory(8))
	ctx := context.Background()

	_, err := uc.Create(ctx, customer.CreateInput{Name: "Tailspin"})
	gt.NoError(t, err)
	gt.NoError(t, uc.Delete(ctx, "Tailspin"))

	_, err = uc.Get(ctx, "Tailspin")
	gt.True(t, errors.Is(err, model.ErrCustomerNotFound))
	gt.True(t, errors.Is(uc.Delete(ctx, "Tailspin"), model.ErrCustomerNotFound))
	gt.True(t, errors.Is(uc.Delete(ctx, ""), model.ErrInvalidArgument))
}
