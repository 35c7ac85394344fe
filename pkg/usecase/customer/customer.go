package customer

import (
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
)

// UseCase provides customer CRUD with input validation in front of the
// store. Every front door (CLI, HTTP, capabilities) goes through it.
type UseCase struct {
	repo repository.CustomerRepository
}

func New(repo repository.CustomerRepository) *UseCase {
	return &UseCase{repo: repo}
}
