package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpt/internal/clierr"
	"mcpt/internal/fanout"
)

// renderServerList prints the default listing: one row per server with its
// tool count, or the captured error for servers that failed.
func renderServerList(w io.Writer, results []fanout.Result, withDescriptions bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\tERROR\t%s\n", res.Server, errorSummary(res.Err))
			continue
		}
		fmt.Fprintf(tw, "%s\t%d tools\n", res.Server, len(res.Tools))
		if !withDescriptions {
			continue
		}
		for i := range res.Tools {
			t := &res.Tools[i]
			fmt.Fprintf(tw, "  %s\t\t%s\n", t.Name, oneLine(t.Description))
		}
	}
}

// renderServerDetail prints one server's tools and instructions.
func renderServerDetail(w io.Writer, server string, viaDaemon bool, instructions string, tools []mcp.Tool, withDescriptions bool) {
	fmt.Fprintf(w, "Server: %s\n", server)
	if viaDaemon {
		fmt.Fprintf(w, "Connection: daemon\n")
	} else {
		fmt.Fprintf(w, "Connection: direct\n")
	}
	if instructions != "" {
		fmt.Fprintf(w, "Instructions: %s\n", oneLine(instructions))
	}
	fmt.Fprintf(w, "Tools (%d):\n", len(tools))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for i := range tools {
		t := &tools[i]
		if withDescriptions {
			fmt.Fprintf(tw, "  %s\t%s\n", t.Name, oneLine(t.Description))
		} else {
			fmt.Fprintf(tw, "  %s\n", t.Name)
		}
	}
}

// renderToolDetail prints one tool with its input schema.
func renderToolDetail(w io.Writer, server string, tool *mcp.Tool) {
	fmt.Fprintf(w, "Tool: %s/%s\n", server, tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", tool.Description)
	}
	schema, err := json.MarshalIndent(tool.InputSchema, "", "  ")
	if err == nil && len(schema) > 0 && string(schema) != "null" {
		fmt.Fprintf(w, "Input schema:\n%s\n", schema)
	}
}

// renderGrep prints search hits plus a trailer for unreachable servers.
func renderGrep(w io.Writer, pattern string, hits []grepHit, results []fanout.Result, withDescriptions bool) {
	if len(hits) == 0 {
		fmt.Fprintf(w, "no tools matching %q\n", pattern)
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, hit := range hits {
			if withDescriptions {
				fmt.Fprintf(tw, "%s/%s\t%s\n", hit.Server, hit.Tool, oneLine(hit.Description))
			} else {
				fmt.Fprintf(tw, "%s/%s\n", hit.Server, hit.Tool)
			}
		}
		tw.Flush()
	}

	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "# %s unreachable: %s\n", res.Server, errorSummary(res.Err))
		}
	}
}

// PrintError writes the canonical error shape to the error channel.
func PrintError(w io.Writer, err error) {
	var e *clierr.Error
	if errors.As(err, &e) {
		fmt.Fprintln(w, e.Format())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// errorSummary compresses an error for inline table display.
func errorSummary(err error) string {
	var e *clierr.Error
	if errors.As(err, &e) {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return err.Error()
}

func oneLine(s string) string {
	const max = 100
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
		if len(out) >= max {
			return string(out) + "..."
		}
	}
	return string(out)
}

// firstTextContent extracts the first text block from a tool result for
// error details.
func firstTextContent(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
