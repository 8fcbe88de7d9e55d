package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/planner"
)

// jsonError is spec §7's structured error envelope: {operation, status:
// "error", error: {kind, message, hint}}.
type jsonError struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Error     struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Hint    string `json:"hint,omitempty"`
	} `json:"error"`
}

// jsonOK wraps a successful operation's result under the same envelope
// shape, so --json callers can always branch on "status".
type jsonOK struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Result    any    `json:"result,omitempty"`
}

func writeJSONResult(w io.Writer, operation string, result any) {
	env := jsonOK{Operation: operation, Status: "success", Result: result}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintf(w, `{"operation":%q,"status":"error","error":{"kind":"config","message":%q}}`+"\n", operation, err.Error())
		return
	}
	fmt.Fprintln(w, string(data))
}

func writeJSONError(w io.Writer, operation string, err error) {
	var env jsonError
	env.Operation = operation
	env.Status = "error"

	var de *dsgerr.Error
	if e, ok := err.(*dsgerr.Error); ok {
		de = e
		env.Error.Kind = string(de.Kind)
		env.Error.Message = de.Message
		env.Error.Hint = de.RecoveryHint
	} else {
		env.Error.Kind = "config"
		env.Error.Message = err.Error()
	}

	data, merr := json.MarshalIndent(env, "", "  ")
	if merr != nil {
		fmt.Fprintf(w, `{"operation":%q,"status":"error","error":{"kind":"config","message":%q}}`+"\n", operation, err.Error())
		return
	}
	fmt.Fprintln(w, string(data))
}

// printErr writes a human-readable error with its recovery hint, if
// any (spec §7: "CLI surfaces the error class and the recovery hint").
func printErr(w io.Writer, operation string, err error) {
	var de *dsgerr.Error
	if e, ok := err.(*dsgerr.Error); ok {
		de = e
		fmt.Fprintf(w, "dsg %s: [%s] %s\n", operation, de.Kind, de.Message)
		if de.RecoveryHint != "" {
			fmt.Fprintf(w, "  hint: %s\n", de.RecoveryHint)
		}
		return
	}
	fmt.Fprintf(w, "dsg %s: %v\n", operation, err)
}

// reportErr renders err on the command's error stream in whichever
// shape app.JSON asked for, then returns err unchanged so cobra's RunE
// still fails the command (cmd/dsg/main.go maps that back to an exit
// code via ExitCode).
func reportErr(cmd *cobra.Command, app *App, operation string, err error) error {
	w := cmd.ErrOrStderr()
	if app.JSON {
		writeJSONError(w, operation, err)
	} else {
		printErr(w, operation, err)
	}
	return err
}

// reportOK renders a successful operation's result.
func reportOK(cmd *cobra.Command, app *App, operation string, result any) error {
	w := cmd.OutOrStdout()
	if app.JSON {
		writeJSONResult(w, operation, result)
		return nil
	}
	fmt.Fprintf(w, "dsg %s: done\n", operation)
	printPlanSummary(w, planFromResult(result))
	return nil
}

// reportPlanPreview renders a --dry-run plan without having performed
// any of it (spec §6 CLI surface's --dry-run flag).
func reportPlanPreview(cmd *cobra.Command, app *App, operation string, plan *planner.Plan) error {
	w := cmd.OutOrStdout()
	if app.JSON {
		writeJSONResult(w, operation, plan)
		return nil
	}
	fmt.Fprintf(w, "dsg %s --dry-run: would do the following\n", operation)
	printPlanSummary(w, plan)
	return nil
}

// planFromResult extracts the *planner.Plan embedded in one of
// lifecycle's *Result types, via the GetPlan method every one of them
// implements, so reportOK can print a summary without a type switch
// per command.
func planFromResult(result any) *planner.Plan {
	switch v := result.(type) {
	case interface{ GetPlan() *planner.Plan }:
		return v.GetPlan()
	}
	return nil
}

// printPlanSummary writes the upload/download/delete/conflict counts a
// human asked dsg to do or would have done. A nil plan (results that
// don't carry one, e.g. validate-* commands) prints nothing.
func printPlanSummary(w io.Writer, plan *planner.Plan) {
	if plan == nil {
		return
	}
	// UploadFiles always carries planner.MetadataFiles; report only the
	// content files a human asked about.
	if n := len(plan.UploadFiles) - len(planner.MetadataFiles); n > 0 {
		fmt.Fprintf(w, "  upload:   %d file(s)\n", n)
	}
	if len(plan.DownloadFiles) > 0 {
		fmt.Fprintf(w, "  download: %d file(s)\n", len(plan.DownloadFiles))
	}
	if len(plan.DeleteLocal) > 0 {
		fmt.Fprintf(w, "  delete (local):  %d file(s)\n", len(plan.DeleteLocal))
	}
	if len(plan.DeleteRemote) > 0 {
		fmt.Fprintf(w, "  delete (remote): %d file(s)\n", len(plan.DeleteRemote))
	}
	if len(plan.Conflicts) > 0 {
		fmt.Fprintf(w, "  conflicts: %d file(s) — see conflicts.txt\n", len(plan.Conflicts))
	}
}
