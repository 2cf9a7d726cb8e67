package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/odata/internal/cli/ui"
	"github.com/conduit-lang/odata/internal/session"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the service metadata",
		Long: `Show the entity sets, entity types and function imports described by
the service's $metadata document.

Examples:
  odata schema --url https://services.odata.org/V3/Northwind/Northwind.svc
  odata schema set order_details
  odata schema set Products/NorthwindModel.DiscontinuedProduct
  odata schema functions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(env *environment, s *session.Session) error {
				renderEntitySets(env, s)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Show one entity set, resolved the same way requests are",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(env *environment, s *session.Session) error {
				return renderEntitySet(env, s, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "functions",
		Short: "List function imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(env *environment, s *session.Session) error {
				renderFunctions(env, s)
				return nil
			})
		},
	})

	return cmd
}

// withSession loads the environment, opens a session and runs fn with it
func withSession(cmd *cobra.Command, g *globalOptions, fn func(*environment, *session.Session) error) error {
	env, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	s, release, err := env.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	return fn(env, s)
}

func renderEntitySets(env *environment, s *session.Session) {
	model := s.Model()

	ui.Header(env.out, "Entity sets", env.noColor)
	table := ui.NewTable(env.out, env.noColor, "Name", "Entity type", "Key", "Properties", "Navigation")
	for _, b := range model.EntitySets() {
		table.AddRow(
			b.Set.Name,
			b.Type.QualifiedName(),
			strings.Join(model.KeyNames(b.Type), ", "),
			strconv.Itoa(len(model.StructuralProperties(b.Type))),
			strconv.Itoa(len(model.NavigationProperties(b.Type))),
		)
	}
	table.Render()
}

func renderEntitySet(env *environment, s *session.Session, name string) error {
	set, et, err := s.Resolver().ResolveConcreteEntitySet(name)
	if err != nil {
		return err
	}
	model := s.Model()

	kv := ui.NewKeyValueTable(env.out, env.noColor)
	kv.AddRow("Entity set", set.Name)
	kv.AddRow("Entity type", et.QualifiedName())
	if base, ok := model.BaseType(et); ok {
		kv.AddRow("Base type", base.QualifiedName())
	}
	if derived := model.DerivedTypes(et); len(derived) > 0 {
		names := make([]string, 0, len(derived))
		for _, d := range derived {
			names = append(names, d.QualifiedName())
		}
		kv.AddRow("Derived types", strings.Join(names, ", "))
	}
	kv.AddRow("Key", strings.Join(model.KeyNames(et), ", "))
	kv.AddRow("Concurrency check", yesNo(s.Resolver().RequiresConcurrencyCheck(et)))
	kv.Render()
	fmt.Fprintln(env.out)

	ui.Header(env.out, "Properties", env.noColor)
	props := ui.NewTable(env.out, env.noColor, "Name", "Type", "Nullable", "Concurrency")
	for _, p := range model.StructuralProperties(et) {
		props.AddRow(p.Name, p.Type.String(), yesNo(p.Nullable), p.ConcurrencyMode.String())
	}
	props.Render()

	navs := model.NavigationProperties(et)
	if len(navs) == 0 {
		return nil
	}
	fmt.Fprintln(env.out)
	ui.Header(env.out, "Navigation properties", env.noColor)
	table := ui.NewTable(env.out, env.noColor, "Name", "Target", "Multiplicity")
	for _, nav := range navs {
		target, multiplicity := "?", "?"
		if end, ok := model.NavigationTarget(nav); ok {
			target, multiplicity = end.Type, end.Multiplicity.String()
		}
		table.AddRow(nav.Name, target, multiplicity)
	}
	table.Render()
	return nil
}

func renderFunctions(env *environment, s *session.Session) {
	ui.Header(env.out, "Function imports", env.noColor)
	table := ui.NewTable(env.out, env.noColor, "Name", "Method", "Returns", "Parameters")
	for _, fn := range s.Model().FunctionImports() {
		method := fn.HTTPMethod
		if method == "" {
			method = "GET"
		}
		returns := "-"
		if fn.ReturnType != nil {
			returns = fn.ReturnType.String()
		}
		params := make([]string, 0, len(fn.Parameters))
		for _, p := range fn.Parameters {
			params = append(params, p.Name+" "+p.Type.String())
		}
		table.AddRow(fn.Name, method, returns, strings.Join(params, ", "))
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
