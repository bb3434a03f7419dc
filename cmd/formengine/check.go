package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goliatone/go-formengine/pkg/schema"
)

type violation struct {
	file  string
	issue schema.Issue
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [schemas...]",
		Short: "Report schema issues",
		Long: `Parse each schema and list the problems that would make fields or
conditions degrade at runtime. Exits non-zero when any issue is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && a.cfg.Schema != "" {
				args = []string{a.cfg.Schema}
			}
			if len(args) == 0 {
				return fmt.Errorf("check: no schema given")
			}

			loader := a.loader()
			var violations []violation
			for _, path := range args {
				doc, err := loader.Load(cmd.Context(), sourceFor(path))
				if err != nil {
					return fmt.Errorf("check %s: %w", path, err)
				}
				for _, issue := range doc.Issues {
					violations = append(violations, violation{file: path, issue: issue})
				}
				a.logger.Debug("schema checked", zap.String("schema", path), zap.Int("issues", len(doc.Issues)))
			}

			sort.SliceStable(violations, func(i, j int) bool {
				if violations[i].file == violations[j].file {
					return violations[i].issue.Path < violations[j].issue.Path
				}
				return violations[i].file < violations[j].file
			})
			out := cmd.ErrOrStderr()
			for _, v := range violations {
				fmt.Fprintf(out, "%s: %s -> %s\n", v.file, v.issue.Path, v.issue.Message)
			}
			if len(violations) > 0 {
				return errReported
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d schema(s) ok\n", len(args))
			return nil
		},
	}
}

