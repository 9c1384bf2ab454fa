package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/gate"
	"github.com/davidahmann/lawgate/internal/lawbook"
	"github.com/davidahmann/lawgate/internal/schema"
	"github.com/davidahmann/lawgate/pkg/types"
)

// exitError carries a process exit code without printing anything more.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		var e exitError
		if errors.As(err, &e) {
			return e.code
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lawgate-cli",
		Short:         "Offline tools for lawbooks, drafts and guardrails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newHashCmd(), newValidateCmd(), newLawbookCmd(), newGateCmd())
	return root
}

func newHashCmd() *cobra.Command {
	var setFields []string
	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the canonical form and hash of a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			canonical, err := crypto.Canonicalize(json.RawMessage(raw), crypto.WithSetFields(setFields...))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nhash=%s digest=%s\n",
				canonical, crypto.DigestHex(canonical), crypto.DigestWithPrefix(canonical))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&setFields, "set", nil, "array fields compared as sets")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema> <file>",
		Short: "Validate a document against one of the built-in schemas",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := schema.ParseID(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			res := schema.Parse(id, raw)
			if !res.Success {
				printFieldErrors(cmd.ErrOrStderr(), res.Errors)
				return exitError{code: 1}
			}
			hash, err := crypto.Hash(res.Data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok schema=%s hash=%s\n", id, crypto.ShortHash(hash))
			return nil
		},
	}
}

func newLawbookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lawbook",
		Short: "Lawbook file tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "lint <file>",
		Short: "Parse a lawbook file (.json, .jsonc, .yaml) and print its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lb, err := lawbook.LoadFile(args[0])
			if err != nil {
				var verr *schema.ValidationError
				if errors.As(err, &verr) {
					printFieldErrors(cmd.ErrOrStderr(), verr.Errors)
					return exitError{code: 1}
				}
				return err
			}
			hash, err := lawbook.ComputeHash(lb)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok lawbook_id=%s lawbook_version=%s lawbook_hash=%s\n",
				lb.LawbookID, lb.LawbookVersion, hash)
			return nil
		},
	})
	return cmd
}

func newGateCmd() *cobra.Command {
	var lawbookPath, paramsPath string
	cmd := &cobra.Command{
		Use:   "gate <kind>",
		Short: "Evaluate a guardrail gate offline; exits 1 unless the verdict is ALLOW",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := gate.ParseKind(args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(paramsPath)
			if err != nil {
				return err
			}
			params, err := gate.DecodeParams(kind, raw)
			if err != nil {
				return err
			}

			var lb *types.Lawbook
			if lawbookPath != "" {
				loaded, err := lawbook.LoadFile(lawbookPath)
				if err != nil {
					return err
				}
				lb = &loaded
			}

			verdict := gate.Evaluate(kind, params, lb)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdict); err != nil {
				return err
			}
			if !verdict.Allowed() {
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lawbookPath, "lawbook", "", "lawbook file; without it every gate denies")
	cmd.Flags().StringVar(&paramsPath, "params", "", "JSON file with the gate params")
	_ = cmd.MarkFlagRequired("params")
	return cmd
}

func printFieldErrors(w io.Writer, errs []schema.FieldError) {
	for _, e := range errs {
		path := e.Path
		if path == "" {
			path = "$"
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", path, e.Message, e.Code)
	}
}
