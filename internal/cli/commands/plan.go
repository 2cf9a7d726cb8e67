package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/odata/internal/cli/ui"
	"github.com/conduit-lang/odata/internal/request"
	"github.com/conduit-lang/odata/internal/session"
	"github.com/conduit-lang/odata/internal/transport"
)

// planOptions are the flags shared by every plan subcommand
type planOptions struct {
	output  string
	execute bool
	etag    string
}

// NewPlanCommand creates the plan command
func NewPlanCommand(g *globalOptions) *cobra.Command {
	po := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build requests from loosely named collections and properties",
		Long: `Resolve names against the service metadata and print the request that
would be sent. With --execute the request is sent as well.

Entries, keys and parameters are given as YAML or JSON objects.

Examples:
  odata plan insert categories --entry '{category_name: Tea}'
  odata plan update products --key '{ProductID: 1}' --entry '{unit_price: 19.5}'
  odata plan link categories products 'Categories(1)' 'Products(7)'
  odata plan invoke products_by_category --params '{categoryName: Beverages}'
  odata plan batch ops.yaml --execute`,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&po.output, "output", "o", "text", "Output format (text, json)")
	flags.BoolVarP(&po.execute, "execute", "x", false, "Send the request to the service")
	flags.StringVar(&po.etag, "etag", "", "ETag for If-Match on requests that need a concurrency check")

	cmd.AddCommand(newPlanReadCommand(g, po))
	cmd.AddCommand(newPlanInsertCommand(g, po))
	cmd.AddCommand(newPlanUpdateCommand(g, po))
	cmd.AddCommand(newPlanDeleteCommand(g, po))
	cmd.AddCommand(newPlanLinkCommand(g, po))
	cmd.AddCommand(newPlanUnlinkCommand(g, po))
	cmd.AddCommand(newPlanInvokeCommand(g, po))
	cmd.AddCommand(newPlanBatchCommand(g, po))

	return cmd
}

type buildFunc func(ctx context.Context, b *request.Builder) (*request.Descriptor, error)

func runPlan(cmd *cobra.Command, g *globalOptions, po *planOptions, build buildFunc) error {
	if po.output != "text" && po.output != "json" {
		return fmt.Errorf("unknown output format %q (use text or json)", po.output)
	}

	return withSession(cmd, g, func(env *environment, s *session.Session) error {
		ctx := cmd.Context()
		d, err := build(ctx, s.Builder())
		if err != nil {
			return err
		}
		if err := printDescriptor(env, d, po); err != nil {
			return err
		}
		if !po.execute {
			return nil
		}

		resp, err := s.Execute(ctx, d, po.etag)
		if err != nil {
			return err
		}
		printResponse(env, resp)
		return nil
	})
}

func newPlanReadCommand(g *globalOptions, po *planOptions) *cobra.Command {
	var scalar bool
	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Plan a GET of a resource path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Read(ctx, args[0], scalar)
			})
		},
	}
	cmd.Flags().BoolVar(&scalar, "scalar", false, "The response is a single primitive value")
	return cmd
}

func newPlanInsertCommand(g *globalOptions, po *planOptions) *cobra.Command {
	var entry string
	var returnContent bool
	cmd := &cobra.Command{
		Use:   "insert <collection>",
		Short: "Plan a POST of a new entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseObject("entry", entry)
			if err != nil {
				return err
			}
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Insert(ctx, args[0], data, returnContent)
			})
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "{}", "Entry properties")
	cmd.Flags().BoolVar(&returnContent, "return", false, "Ask the service to return the created entry")
	return cmd
}

func newPlanUpdateCommand(g *globalOptions, po *planOptions) *cobra.Command {
	var entry, key, path string
	var returnContent, forceMerge bool
	cmd := &cobra.Command{
		Use:   "update <collection>",
		Short: "Plan a PUT or PATCH of an existing entry",
		Long: `Plan an update. The request is a PUT when the entry names every property
of the entity type and a PATCH otherwise, or always a PATCH with --merge.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseObject("entry", entry)
			if err != nil {
				return err
			}
			var keyValues map[string]any
			if path == "" {
				if key == "" {
					return fmt.Errorf("either --key or --path is required")
				}
				if keyValues, err = parseObject("key", key); err != nil {
					return err
				}
			}
			var opts []request.UpdateOption
			if forceMerge {
				opts = append(opts, request.ForceMerge())
			}
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Update(ctx, path, args[0], keyValues, data, returnContent, opts...)
			})
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "{}", "Entry properties")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Key properties used to build the entry path")
	cmd.Flags().StringVar(&path, "path", "", "Entry path, e.g. Products(1)")
	cmd.Flags().BoolVar(&returnContent, "return", false, "Ask the service to return the updated entry")
	cmd.Flags().BoolVar(&forceMerge, "merge", false, "Always merge (PATCH)")
	return cmd
}

func newPlanDeleteCommand(g *globalOptions, po *planOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <path>",
		Short: "Plan a DELETE of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Delete(ctx, args[1], args[0])
			})
		},
	}
}

func newPlanLinkCommand(g *globalOptions, po *planOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <collection> <navigation> <entry-path> <target-path>",
		Short: "Plan adding a link between two entries",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Link(ctx, args[0], args[1], args[2], args[3])
			})
		},
	}
}

func newPlanUnlinkCommand(g *globalOptions, po *planOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <collection> <navigation> <entry-path>",
		Short: "Plan removing a link from an entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Unlink(ctx, args[2], args[0], args[1])
			})
		},
	}
}

func newPlanInvokeCommand(g *globalOptions, po *planOptions) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "invoke <function>",
		Short: "Plan a function import call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseObject("params", params)
			if err != nil {
				return err
			}
			return runPlan(cmd, g, po, func(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
				return b.Invoke(ctx, args[0], values)
			})
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "{}", "Function parameters")
	return cmd
}

// parseObject decodes a YAML or JSON object given on the command line
func parseObject(flag, text string) (map[string]any, error) {
	out := map[string]any{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return out, nil
}

// plannedRequest is the JSON rendering of a descriptor
type plannedRequest struct {
	*request.Descriptor
	Prefer  string          `json:"prefer,omitempty"`
	IfMatch string          `json:"if_match,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

func ifMatch(d *request.Descriptor, etag string) string {
	if !d.RequiresConcurrencyPrecondition {
		return ""
	}
	if etag != "" {
		return etag
	}
	return "*"
}

func printDescriptor(env *environment, d *request.Descriptor, po *planOptions) error {
	if po.output == "json" {
		out := plannedRequest{Descriptor: d, Prefer: request.Prefer(d), IfMatch: ifMatch(d, po.etag)}
		if json.Valid(d.Body) {
			out.Body = d.Body
		}
		enc := json.NewEncoder(env.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	kv := ui.NewKeyValueTable(env.out, env.noColor)
	kv.AddRow("Request", d.String())
	if d.ContentType != "" {
		kv.AddRow("Content-Type", d.ContentType)
	}
	if p := request.Prefer(d); p != "" {
		kv.AddRow("Prefer", p)
	}
	if m := ifMatch(d, po.etag); m != "" {
		kv.AddRow("If-Match", m)
	}
	if d.IsLink {
		kv.AddRow("Link", "yes")
	}
	if d.ReturnsScalar {
		kv.AddRow("Scalar result", "yes")
	}
	if len(d.Body) > 0 {
		kv.AddRow("Body", string(d.Body))
	}
	kv.Render()
	return nil
}

func printResponse(env *environment, resp *transport.Response) {
	fmt.Fprintln(env.out)
	kv := ui.NewKeyValueTable(env.out, env.noColor)
	kv.AddRow("Status", strconv.Itoa(resp.StatusCode))
	if etag := resp.ETag(); etag != "" {
		kv.AddRow("ETag", etag)
	}
	kv.Render()
	if len(resp.Body) > 0 {
		fmt.Fprintln(env.out)
		fmt.Fprintln(env.out, strings.TrimRight(string(resp.Body), "\n"))
	}
}

// batchOperation is one entry of a batch file
type batchOperation struct {
	Op         string         `yaml:"op"`
	Collection string         `yaml:"collection"`
	Path       string         `yaml:"path"`
	Key        map[string]any `yaml:"key"`
	Entry      map[string]any `yaml:"entry"`
	Return     bool           `yaml:"return"`
	Merge      bool           `yaml:"merge"`
	Scalar     bool           `yaml:"scalar"`
	Link       string         `yaml:"link"`
	EntryPath  string         `yaml:"entry_path"`
	Target     string         `yaml:"target"`
	Function   string         `yaml:"function"`
	Params     map[string]any `yaml:"params"`
}

func (op batchOperation) apply(ctx context.Context, b *request.Builder) (*request.Descriptor, error) {
	switch strings.ToLower(op.Op) {
	case "read":
		return b.Read(ctx, op.Path, op.Scalar)
	case "insert":
		return b.Insert(ctx, op.Collection, op.Entry, op.Return)
	case "update":
		var opts []request.UpdateOption
		if op.Merge {
			opts = append(opts, request.ForceMerge())
		}
		return b.Update(ctx, op.Path, op.Collection, op.Key, op.Entry, op.Return, opts...)
	case "delete":
		return b.Delete(ctx, op.Path, op.Collection)
	case "link":
		return b.Link(ctx, op.Collection, op.Link, op.EntryPath, op.Target)
	case "unlink":
		return b.Unlink(ctx, op.Path, op.Collection, op.Link)
	case "invoke":
		return b.Invoke(ctx, op.Function, op.Params)
	default:
		return nil, fmt.Errorf("unknown operation %q", op.Op)
	}
}

func readBatchFile(path string, stdin io.Reader) ([]batchOperation, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var ops []batchOperation
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("batch file %s contains no operations", path)
	}
	return ops, nil
}

func newPlanBatchCommand(g *globalOptions, po *planOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Plan a $batch request from a list of operations",
		Long: `Plan a $batch request. The file holds a YAML or JSON list of operations;
each has an "op" (read, insert, update, delete, link, unlink, invoke) and the
fields of that operation. Later operations may address entries created
earlier in the same change set as $1, $2, ...

Example file:
  - op: insert
    collection: categories
    entry: {category_name: Tea}
  - op: link
    collection: categories
    link: products
    entry_path: $1
    target: Products(1)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readBatchFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withSession(cmd, g, func(env *environment, s *session.Session) error {
				ctx := cmd.Context()
				b := s.BatchBuilder()
				for i, op := range ops {
					d, err := op.apply(ctx, b)
					if err != nil {
						return fmt.Errorf("operation %d (%s): %w", i+1, op.Op, err)
					}
					fmt.Fprintf(env.out, "%s %s\n", request.ContentIDPath(d.ContentID), d.String())
				}
				fmt.Fprintln(env.out)

				if po.execute {
					resp, err := s.ExecuteBatch(ctx, b)
					if err != nil {
						return err
					}
					printResponse(env, resp)
					return nil
				}

				req, err := b.CompleteBatch(ctx)
				if err != nil {
					return err
				}
				body, err := io.ReadAll(req.Body)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.out, "%s %s\nContent-Type: %s\n\n%s", req.Method, req.URL, req.Header.Get("Content-Type"), body)
				return nil
			})
		},
	}
}
