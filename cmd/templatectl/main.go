// Command templatectl lints and renders template YAML files offline, using
// the same validation and assembly code as the API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crestpointmarketing/eventra-app-sub000/internal/apperr"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/variables"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

// errLintFailed signals a non-zero exit after the issues were printed.
var errLintFailed = errors.New("lint failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errLintFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "templatectl",
		Short:         "Lint and render email templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLintCmd(), newRenderCmd())
	return root
}

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file.yaml>...",
		Short: "Validate every template in the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false
			for _, path := range args {
				inputs, err := templates.LoadSeeds(path)
				if err != nil {
					return err
				}
				svc := offlineStore()
				for _, in := range inputs {
					if _, err := svc.Create(cmd.Context(), in); err != nil {
						failed = true
						printIssues(out, path, in.Name, err)
						continue
					}
					fmt.Fprintf(out, "ok   %s: %s\n", path, in.Name)
				}
			}
			if failed {
				return errLintFailed
			}
			return nil
		},
	}
}

func newRenderCmd() *cobra.Command {
	var (
		name     string
		vars     []string
		tone     string
		language string
		variants int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "render <file.yaml>",
		Short: "Assemble a draft from one template with the given variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leadCtx, err := parseVars(vars)
			if err != nil {
				return err
			}
			t, err := loadOne(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			assembler := drafts.NewAssembler(variables.DefaultAliases(), "")
			d, err := assembler.Assemble(t, leadCtx, drafts.Options{
				Tone:            tone,
				Language:        language,
				SubjectVariants: variants,
			})
			if err != nil {
				return describe(err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			printDraft(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "template", "", "template name within the file (default: first)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "lead variable as key=value, repeatable")
	cmd.Flags().StringVar(&tone, "tone", "", "override the template tone")
	cmd.Flags().StringVar(&language, "language", "", "override the template language")
	cmd.Flags().IntVar(&variants, "variants", 0, "number of subject variants to render")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the draft as JSON")
	return cmd
}

func offlineStore() *templates.Service {
	return templates.NewService(templates.NewInMemoryRepository(), logging.New("error"))
}

// loadOne validates the named template (or the first one) through the store.
func loadOne(ctx context.Context, path, name string) (*templates.Template, error) {
	inputs, err := templates.LoadSeeds(path)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s: no templates", path)
	}
	in := inputs[0]
	if name != "" {
		found := false
		for _, candidate := range inputs {
			if strings.EqualFold(candidate.Name, name) {
				in, found = candidate, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: no template named %q", path, name)
		}
	}
	t, err := offlineStore().Create(ctx, in)
	if err != nil {
		return nil, describe(err)
	}
	return t, nil
}

func parseVars(pairs []string) (variables.Context, error) {
	ctx := variables.Context{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		ctx = ctx.With(key, value)
	}
	return ctx, nil
}

func describe(err error) error {
	issues := apperr.IssuesOf(err)
	if len(issues) == 0 {
		return err
	}
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, formatIssue(is))
	}
	return fmt.Errorf("%w:\n  %s", err, strings.Join(lines, "\n  "))
}

func printIssues(w io.Writer, path, name string, err error) {
	fmt.Fprintf(w, "FAIL %s: %s\n", path, name)
	issues := apperr.IssuesOf(err)
	if len(issues) == 0 {
		fmt.Fprintf(w, "  %v\n", err)
		return
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	for _, is := range issues {
		fmt.Fprintf(w, "  %s\n", formatIssue(is))
	}
}

func formatIssue(is apperr.Issue) string {
	var b strings.Builder
	b.WriteString(is.Field)
	if is.Block != "" {
		fmt.Fprintf(&b, " [%s]", is.Block)
	}
	if is.Token != "" {
		fmt.Fprintf(&b, " {{%s}}", is.Token)
	}
	b.WriteString(": ")
	b.WriteString(is.Message)
	return b.String()
}

func printDraft(w io.Writer, d *drafts.Draft) {
	fmt.Fprintf(w, "Subject: %s\n\n%s\n", d.Subject, d.Body)
	if d.CTA != nil {
		fmt.Fprintf(w, "\nCTA: %s %s\n", d.CTA.Text, d.CTA.URL)
	}
	for _, v := range d.Variants {
		fmt.Fprintf(w, "Variant %d: %s\n", v.SortOrder, v.Text)
	}
	for _, warn := range d.Warnings {
		fmt.Fprintf(w, "warning: %s {{%s}} %s\n", warn.Block, warn.Token, warn.Message)
	}
	for _, v := range d.Violations {
		fmt.Fprintf(w, "violation: %s %s\n", v.Kind, v.Message)
	}
}
