package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nlstn/go-sprest"
	"github.com/nlstn/go-sprest/mirror"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// printValue writes v as indented JSON or YAML.
func printValue(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// round-trip through JSON so raw SharePoint properties become plain values
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// parseConditions parses "Field=condition" pairs such as "Status=eq 'Open'".
func parseConditions(pairs []string) (sprest.Conditions, error) {
	var c sprest.Conditions
	for _, pair := range pairs {
		field, cond, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return sprest.Conditions{}, fmt.Errorf("condition %q must have the form Field=condition", pair)
		}
		c.Set(field, strings.TrimSpace(cond))
	}
	return c, nil
}

// queryFlags are the OData shaping flags shared by several commands.
type queryFlags struct {
	selectFields []string
	expand       []string
	and          []string
	or           []string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&q.selectFields, "select", nil, "fields to return")
	cmd.Flags().StringSliceVar(&q.expand, "expand", nil, "lookup fields to expand")
	cmd.Flags().StringArrayVar(&q.and, "and", nil, "AND condition Field=condition (repeatable)")
	cmd.Flags().StringArrayVar(&q.or, "or", nil, "OR condition Field=condition (repeatable)")
}

func (q *queryFlags) spec() (sprest.QuerySpec, error) {
	and, err := parseConditions(q.and)
	if err != nil {
		return sprest.QuerySpec{}, err
	}
	or, err := parseConditions(q.or)
	if err != nil {
		return sprest.QuerySpec{}, err
	}
	return sprest.QuerySpec{Select: q.selectFields, Expand: q.expand, And: and, Or: or}, nil
}

type queryDocument struct {
	Select []string          `yaml:"select,omitempty" json:"select,omitempty"`
	Expand []string          `yaml:"expand,omitempty" json:"expand,omitempty"`
	And    map[string]string `yaml:"and,omitempty" json:"and,omitempty"`
	Or     map[string]string `yaml:"or,omitempty" json:"or,omitempty"`
	Query  string            `yaml:"query" json:"query"`
}

func conditionMap(c sprest.Conditions) map[string]string {
	if c.Len() == 0 {
		return nil
	}
	m := make(map[string]string, c.Len())
	for _, f := range c.Fields() {
		m[f], _ = c.Get(f)
	}
	return m
}

func newQueryCmd(_ *app) *cobra.Command {
	var q queryFlags
	var format string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compose an OData query fragment without contacting SharePoint",
		Example: `  spcli query --select Id,Title --expand Author --and "Status=eq 'Open'" --or "Priority=eq 1"
  $select=Id,Title&$expand=Author&$filter=((Status eq 'Open') and ((Priority eq 1)))`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := q.spec()
			if err != nil {
				return err
			}
			if format == "text" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), spec.String())
				return err
			}
			return printValue(cmd.OutOrStdout(), format, queryDocument{
				Select: spec.Select,
				Expand: spec.Expand,
				And:    conditionMap(spec.And),
				Or:     conditionMap(spec.Or),
				Query:  spec.String(),
			})
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&format, "format", "text", "text, json or yaml")
	return cmd
}

func newListsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show the lists of the web",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			lists, err := c.FetchAllLists(cmd.Context())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), a.output, lists)
		},
	}
}

func newItemsCmd(a *app) *cobra.Command {
	var q queryFlags
	var all bool
	var id int
	cmd := &cobra.Command{
		Use:   "items <list>",
		Short: "Show the items of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			list := c.List(args[0])
			spec, err := q.spec()
			if err != nil {
				return err
			}

			var out any
			switch {
			case id > 0:
				out, err = c.FetchListItemByID(cmd.Context(), list, id)
			case all:
				out, err = c.FetchAllListItems(cmd.Context(), list, spec.String())
			default:
				out, err = c.FetchListItemsQuery(cmd.Context(), list, spec.String())
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), a.output, out)
		},
	}
	q.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "follow paging links and return every item")
	cmd.Flags().IntVar(&id, "id", 0, "return a single item by id")
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "count <list>",
		Short: "Count the items of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			list := c.List(args[0])
			var n int
			if filter == "" {
				n, err = c.ListItemCount(cmd.Context(), list)
			} else {
				n, err = c.ListItemCountQuery(cmd.Context(), list, "$filter="+filter)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "count only items matching this $filter expression")
	return cmd
}

func newUniqueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unique <list> <field>",
		Short: "Show the distinct values of a field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			values, err := c.FetchListUniqueValues(cmd.Context(), c.List(args[0]), args[1])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), a.output, values)
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var meta []string
	var exact, overwrite bool
	cmd := &cobra.Command{
		Use:   "upload <library> <file>",
		Short: "Upload a file to the root folder of a document library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			library := c.List(args[0])

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			var metadata map[string]any
			if len(meta) > 0 {
				metadata = make(map[string]any, len(meta)+1)
				for _, kv := range meta {
					key, value, ok := strings.Cut(kv, "=")
					if !ok || key == "" {
						return fmt.Errorf("metadata %q must have the form Field=value", kv)
					}
					metadata[key] = value
				}
				entityType, err := c.FetchListItemEntityType(cmd.Context(), library)
				if err != nil {
					return fmt.Errorf("resolve item type of %q: %w", library, err)
				}
				metadata["__metadata"] = map[string]string{"type": entityType}
			}

			opts := []sprest.UploadOption{
				sprest.WithProgress(func(sent int64) {
					a.logger.Debug("Uploading", "file", info.Name(), "sent", sent, "size", info.Size())
				}),
			}
			if exact {
				opts = append(opts, sprest.WithExactName())
			}
			if overwrite {
				opts = append(opts, sprest.WithOverwrite())
			}

			item, err := c.UploadFile(cmd.Context(), library, filepath.Base(args[1]), f, metadata, opts...)
			if err != nil {
				return err
			}
			a.logger.Info("Uploaded file", "library", library, "item", item.ID(), "bytes", info.Size())
			return printValue(cmd.OutOrStdout(), a.output, item)
		},
	}
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "item field to set after upload, Field=value (repeatable)")
	cmd.Flags().BoolVar(&exact, "exact", false, "keep the file name as is instead of prefixing a timestamp")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file with the same name")
	return cmd
}

func newGroupUsersCmd(a *app) *cobra.Command {
	var byID bool
	var selectFields []string
	cmd := &cobra.Command{
		Use:   "group-users <group>",
		Short: "Show the members of a site group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			query := sprest.QuerySpec{Select: selectFields}.String()

			var users []sprest.Item
			if byID {
				id, convErr := strconv.Atoi(args[0])
				if convErr != nil {
					return fmt.Errorf("group id %q is not a number", args[0])
				}
				users, err = c.FetchGroupUsersByID(cmd.Context(), id, query)
			} else {
				users, err = c.FetchGroupUsersByName(cmd.Context(), args[0], query)
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), a.output, users)
		},
	}
	cmd.Flags().BoolVar(&byID, "id", false, "treat the argument as a numeric group id")
	cmd.Flags().StringSliceVar(&selectFields, "select", []string{"Id", "Title", "Email", "LoginName"}, "fields to return")
	return cmd
}

func newMeCmd(a *app) *cobra.Command {
	var profile []string
	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if len(profile) > 0 {
				props, err := c.FetchCurrentUserProperties(cmd.Context(), profile)
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), a.output, props)
			}
			user, err := c.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), a.output, user)
		},
	}
	cmd.Flags().StringSliceVar(&profile, "profile", nil, "user profile properties to show instead of the web user")
	return cmd
}

func newMirrorCmd(a *app) *cobra.Command {
	var q queryFlags
	var driver, dsn string
	cmd := &cobra.Command{
		Use:   "mirror <list>",
		Short: "Copy the items of a list into a local database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if driver == "" {
				driver = a.cfg.Mirror.Driver
			}
			if dsn == "" {
				dsn = a.cfg.Mirror.DSN
			}
			dialector, err := openDialector(driver, dsn)
			if err != nil {
				return err
			}
			store, err := mirror.Open(dialector, mirror.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer store.Close()

			spec, err := q.spec()
			if err != nil {
				return err
			}
			list := c.List(args[0])
			stats, pruned, err := store.Mirror(cmd.Context(), c, list, spec.String())
			if err != nil {
				return err
			}
			a.logger.Info("Mirrored list", "list", list, "inserted", stats.Inserted,
				"updated", stats.Updated, "unchanged", stats.Unchanged, "pruned", pruned)
			return printValue(cmd.OutOrStdout(), a.output, map[string]any{
				"list":      list,
				"inserted":  stats.Inserted,
				"updated":   stats.Updated,
				"unchanged": stats.Unchanged,
				"pruned":    pruned,
			})
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&driver, "driver", "", "database driver: sqlite or postgres (default from config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN or sqlite file (default from config)")
	return cmd
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported mirror driver %q", driver)
	}
}
