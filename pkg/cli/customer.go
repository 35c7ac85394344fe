package cli

import (
	"context"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
	"github.com/urfave/cli/v3"
)

func customerCommand() *cli.Command {
	return &cli.Command{
		Name:  "customer",
		Usage: "Manage customer profiles",
		Commands: []*cli.Command{
			customerListCommand(),
			customerGetCommand(),
			customerCreateCommand(),
			customerUpdateCommand(),
			customerDeleteCommand(),
		},
	}
}

func printCustomer(w io.Writer, c *model.Customer) {
	printf(w, "Name:        %s\n", c.Name)
	printf(w, "Priority:    %s\n", c.Priority)
	printf(w, "Products:    %s\n", strings.Join(c.Products, ", "))
	if c.Description != "" {
		printf(w, "Description: %s\n", c.Description)
	}
	if c.Notes != "" {
		printf(w, "Notes:       %s\n", c.Notes)
	}
	printf(w, "Updated:     %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func customerName(c *cli.Command) (string, error) {
	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return "", goerr.New("customer name is required")
	}
	return name, nil
}

func customerListCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "list",
		Usage: "List all customers",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			customers, err := a.customers.List(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(customers) == 0 {
				printf(w, "No customers.\n")
				return nil
			}
			for _, cu := range customers {
				printf(w, "%-30s %-6s %s\n", cu.Name, cu.Priority, strings.Join(cu.Products, ", "))
			}
			return nil
		},
	}
}

func customerGetCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a customer",
		ArgsUsage: "<name>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			name, err := customerName(c)
			if err != nil {
				return err
			}
			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			customer, err := a.customers.Get(ctx, name)
			if err != nil {
				return err
			}
			printCustomer(c.Root().Writer, customer)
			return nil
		},
	}
}

func customerCreateCommand() *cli.Command {
	var (
		cfg   config
		input customeruc.CreateInput
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "description",
			Aliases:     []string{"d"},
			Usage:       "Free text description",
			Destination: &input.Description,
		},
		&cli.StringSliceFlag{
			Name:        "product",
			Aliases:     []string{"p"},
			Usage:       "Product the customer uses (repeatable)",
			Destination: &input.Products,
		},
		&cli.StringFlag{
			Name:        "priority",
			Usage:       "Priority (low, medium, high)",
			Value:       string(model.PriorityMedium),
			Destination: &input.Priority,
		},
		&cli.StringFlag{
			Name:        "notes",
			Usage:       "Account notes",
			Destination: &input.Notes,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "create",
		Usage:     "Create a customer",
		ArgsUsage: "<name>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			name, err := customerName(c)
			if err != nil {
				return err
			}
			input.Name = name

			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			customer, err := a.customers.Create(ctx, input)
			if err != nil {
				return err
			}
			printCustomer(c.Root().Writer, customer)
			return nil
		},
	}
}

func customerUpdateCommand() *cli.Command {
	var (
		cfg                                  config
		newName, description, priority, note string
		products                             []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Rename the customer", Destination: &newName},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Replace the description", Destination: &description},
		&cli.StringSliceFlag{Name: "product", Aliases: []string{"p"}, Usage: "Replace the products (repeatable)", Destination: &products},
		&cli.StringFlag{Name: "priority", Usage: "Priority (low, medium, high)", Destination: &priority},
		&cli.StringFlag{Name: "notes", Usage: "Replace the notes", Destination: &note},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "update",
		Usage:     "Update fields of a customer; omitted fields are kept",
		ArgsUsage: "<name>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			name, err := customerName(c)
			if err != nil {
				return err
			}

			var input customeruc.UpdateInput
			if c.IsSet("name") {
				input.Name = &newName
			}
			if c.IsSet("description") {
				input.Description = &description
			}
			if c.IsSet("product") {
				input.Products = &products
			}
			if c.IsSet("priority") {
				input.Priority = &priority
			}
			if c.IsSet("notes") {
				input.Notes = &note
			}

			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			customer, err := a.customers.Update(ctx, name, input)
			if err != nil {
				return err
			}
			printCustomer(c.Root().Writer, customer)
			return nil
		},
	}
}

func customerDeleteCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a customer",
		ArgsUsage: "<name>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			name, err := customerName(c)
			if err != nil {
				return err
			}
			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.customers.Delete(ctx, name); err != nil {
				return err
			}
			printf(c.Root().Writer, "Deleted %s\n", name)
			return nil
		},
	}
}
