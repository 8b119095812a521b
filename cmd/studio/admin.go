package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/adminclient"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/config"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/optimistic"
)

type adminFlags struct {
	apiURL   string
	email    string
	password string
	filter   adminclient.ListFilter
	active   string
}

func adminCmd() *cobra.Command {
	f := &adminFlags{}
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the catalog through the admin API",
	}
	cmd.PersistentFlags().StringVar(&f.apiURL, "api", "", "storefront base URL (default $STUDIO_API_URL)")
	cmd.PersistentFlags().StringVar(&f.email, "email", "", "admin email (default $ADMIN_EMAIL)")
	cmd.PersistentFlags().StringVar(&f.password, "password", "", "admin password (default $ADMIN_PASSWORD)")

	products := &cobra.Command{Use: "products", Short: "List and edit products"}
	products.PersistentFlags().StringVarP(&f.filter.Query, "query", "q", "", "search name and description")
	products.PersistentFlags().StringVar(&f.filter.Category, "category", "", "category filter")
	products.PersistentFlags().StringVar(&f.active, "active", "", "true or false to filter on is_active")
	products.PersistentFlags().IntVar(&f.filter.Limit, "limit", 200, "page size")

	products.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the product table",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := f.table(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := t.Rows(cmd.Context())
			if err != nil {
				return err
			}
			return printProducts(rows)
		},
	})
	products.AddCommand(mutationCmd(f, "delete", "Delete products", func(ctx context.Context, t *adminclient.Table, ids []int64) error {
		for _, id := range ids {
			if err := t.Delete(ctx, id); err != nil {
				return errors.Wrapf(err, "delete %d", id)
			}
		}
		return nil
	}))
	products.AddCommand(mutationCmd(f, "activate", "Mark products active", func(ctx context.Context, t *adminclient.Table, ids []int64) error {
		return setActive(ctx, t, ids, true)
	}))
	products.AddCommand(mutationCmd(f, "deactivate", "Mark products inactive", func(ctx context.Context, t *adminclient.Table, ids []int64) error {
		return setActive(ctx, t, ids, false)
	}))
	products.AddCommand(mutationCmd(f, "favorite", "Toggle the favorite flag", func(ctx context.Context, t *adminclient.Table, ids []int64) error {
		for _, id := range ids {
			if err := t.ToggleFavorite(ctx, id); err != nil {
				return errors.Wrapf(err, "toggle favorite %d", id)
			}
		}
		return nil
	}))
	products.AddCommand(bulkCmd(f))

	cmd.AddCommand(products)
	return cmd
}

func setActive(ctx context.Context, t *adminclient.Table, ids []int64, active bool) error {
	if len(ids) == 1 {
		return t.SetActive(ctx, ids[0], active)
	}
	return t.BulkUpdate(ctx, ids, catalog.ProductPatch{IsActive: &active})
}

func mutationCmd(f *adminFlags, use, short string, run func(context.Context, *adminclient.Table, []int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			t, err := f.table(cmd.Context())
			if err != nil {
				return err
			}
			if err := run(cmd.Context(), t, ids); err != nil {
				return err
			}
			cmd.Printf("%s: %d product(s)\n", use, len(ids))
			return nil
		},
	}
}

func bulkCmd(f *adminFlags) *cobra.Command {
	var (
		category string
		price    string
		stock    int
		active   string
		favorite string
	)
	cmd := &cobra.Command{
		Use:   "bulk ID...",
		Short: "Apply one patch to several products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			var patch catalog.ProductPatch
			if cmd.Flags().Changed("category") {
				patch.Category = &category
			}
			if price != "" {
				d, err := decimal.NewFromString(price)
				if err != nil {
					return errors.Wrap(err, "parse --price")
				}
				patch.Price = &d
			}
			if cmd.Flags().Changed("stock") {
				n := stock
				patch.Stock = catalog.OptionalInt{Set: true, Value: &n}
			}
			if patch.IsActive, err = optionalBool("set-active", active); err != nil {
				return err
			}
			if patch.IsFavorite, err = optionalBool("set-favorite", favorite); err != nil {
				return err
			}
			t, err := f.table(cmd.Context())
			if err != nil {
				return err
			}
			if err := t.BulkUpdate(cmd.Context(), ids, patch); err != nil {
				return err
			}
			cmd.Printf("updated %d product(s)\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&price, "price", "", "new price")
	cmd.Flags().IntVar(&stock, "stock", 0, "new stock level")
	cmd.Flags().StringVar(&active, "set-active", "", "true or false")
	cmd.Flags().StringVar(&favorite, "set-favorite", "", "true or false")
	return cmd
}

// table logs in and loads the first page so mutations have rows to apply
// their optimistic update to.
func (f *adminFlags) table(ctx context.Context) (*adminclient.Table, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	base := firstNonEmpty(f.apiURL, cfg.APIURL)
	email := firstNonEmpty(f.email, cfg.Admin.Email)
	password := firstNonEmpty(f.password, cfg.Admin.Password)
	if email == "" || password == "" {
		return nil, errors.New("admin email and password are required")
	}
	filter := f.filter
	if filter.Active, err = optionalBool("active", f.active); err != nil {
		return nil, err
	}

	client, err := adminclient.New(base)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, email, password); err != nil {
		return nil, errors.Wrap(err, "login")
	}
	t := adminclient.NewTable(client, optimistic.NewCache(), filter)
	if _, err := t.Load(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func printProducts(rows []catalog.Product) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK\tACTIVE\tFAVORITE\tCATEGORY")
	for _, p := range rows {
		stock := "-"
		if p.Stock != nil {
			stock = strconv.Itoa(*p.Stock)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%t\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), stock, p.IsActive, p.IsFavorite, p.Category)
	}
	return w.Flush()
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.Errorf("invalid product id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func optionalBool(name, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Errorf("--%s must be true or false", name)
	}
	return &b, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
