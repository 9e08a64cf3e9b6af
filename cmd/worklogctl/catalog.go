package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/WorkLog/internal/catalog"
	"github.com/BTreeMap/WorkLog/internal/models"
)

type catalogFlags struct {
	kind  string
	group string
	name  string
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage locations and activities",
	}
	cmd.AddCommand(newCatalogListCommand(root))
	cmd.AddCommand(newCatalogEditCommand(root, "add", "Add a catalog item", addItem))
	cmd.AddCommand(newCatalogEditCommand(root, "remove", "Remove a catalog item", removeItem))
	cmd.AddCommand(newCatalogSeedCommand(root))
	return cmd
}

func newCatalogListCommand(root *rootFlags) *cobra.Command {
	flags := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogList(cmd.Context(), cmd.OutOrStdout(), root.dsn, flags)
		},
	}
	cmd.Flags().StringVar(&flags.kind, "kind", string(models.KindLocation), "catalog kind: location or activity")
	cmd.Flags().StringVar(&flags.group, "group", "", "group to list (default all groups of the kind)")
	return cmd
}

type editFunc func(ctx context.Context, svc *catalog.Service, kind models.CatalogKind, group, name string) (string, error)

func addItem(ctx context.Context, svc *catalog.Service, kind models.CatalogKind, group, name string) (string, error) {
	added, err := svc.Add(ctx, kind, group, name)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("%s %q already exists in %s", kind, name, group), nil
	}
	return fmt.Sprintf("added %s %q to %s", kind, name, group), nil
}

func removeItem(ctx context.Context, svc *catalog.Service, kind models.CatalogKind, group, name string) (string, error) {
	removed, err := svc.Remove(ctx, kind, group, name)
	if err != nil {
		return "", err
	}
	if !removed {
		return "", fmt.Errorf("%s %q not found in %s", kind, name, group)
	}
	return fmt.Sprintf("removed %s %q from %s", kind, name, group), nil
}

func newCatalogEditCommand(root *rootFlags, use, short string, edit editFunc) *cobra.Command {
	flags := &catalogFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogEdit(cmd.Context(), cmd.OutOrStdout(), root.dsn, flags, edit)
		},
	}
	cmd.Flags().StringVar(&flags.kind, "kind", string(models.KindLocation), "catalog kind: location or activity")
	cmd.Flags().StringVar(&flags.group, "group", "", "location group or activity category")
	cmd.Flags().StringVar(&flags.name, "name", "", "item name")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCatalogSeedCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Copy the default lists into an empty catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(root.dsn, func(svc *catalog.Service) error {
				if err := svc.Seed(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "catalog seeded")
				return nil
			})
		},
	}
}

// groupsOf returns the groups of kind in display order.
func groupsOf(kind models.CatalogKind) ([]string, error) {
	switch kind {
	case models.KindLocation:
		return []string{string(models.GroupFields), string(models.GroupWarehouse), string(models.GroupOffice)}, nil
	case models.KindActivity:
		return []string{
			string(models.CategoryMachinery), string(models.CategoryManual),
			string(models.CategoryAdministrative), string(models.CategoryIT),
		}, nil
	}
	return nil, fmt.Errorf("unknown catalog kind %q", kind)
}

func withCatalog(dsn string, fn func(svc *catalog.Service) error) error {
	defaults, err := catalog.LoadDefaults()
	if err != nil {
		return err
	}
	st, err := openStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	return fn(catalog.NewService(st, defaults))
}

func runCatalogList(ctx context.Context, out io.Writer, dsn string, flags *catalogFlags) error {
	kind := models.CatalogKind(flags.kind)
	groups, err := groupsOf(kind)
	if err != nil {
		return err
	}
	if flags.group != "" {
		groups = []string{flags.group}
	}
	return withCatalog(dsn, func(svc *catalog.Service) error {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GROUP\tNAME\tID")
		for _, group := range groups {
			items, err := svc.Items(ctx, kind, group)
			if err != nil {
				return err
			}
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Group, it.Name, it.ID)
			}
		}
		return tw.Flush()
	})
}

func runCatalogEdit(ctx context.Context, out io.Writer, dsn string, flags *catalogFlags, edit editFunc) error {
	kind := models.CatalogKind(flags.kind)
	if _, err := groupsOf(kind); err != nil {
		return err
	}
	return withCatalog(dsn, func(svc *catalog.Service) error {
		msg, err := edit(ctx, svc, kind, flags.group, flags.name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)
		return nil
	})
}
