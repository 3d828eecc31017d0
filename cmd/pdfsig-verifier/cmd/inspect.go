package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/handler"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [files...]",
	Short: "List signature fields without verifying them",
	Long: `List the signature fields of PDF documents together with their
signature dictionary metadata and a structural check of the file.

Examples:
  pdfsig-verifier inspect contract.pdf
  pdfsig-verifier inspect -f json ./signed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	results := make([]*InspectResult, 0, len(files))
	for _, f := range files {
		results = append(results, inspectFile(f))
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, results)
	}
	printInspectTable(out, results)
	return nil
}

func inspectFile(path string) *InspectResult {
	result := &InspectResult{File: path, Fields: []FieldOutput{}}

	doc, err := document.LoadFile(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Document = doc.Preflight()

	fields, err := doc.SignatureFields()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for i := range fields {
		result.Fields = append(result.Fields, fieldOutput(&fields[i]))
	}
	return result
}

func fieldOutput(f *signature.Field) FieldOutput {
	out := FieldOutput{
		Name:      f.QualifiedName,
		Reference: f.Reference.String(),
	}

	d := f.Dictionary
	if d == nil {
		return out
	}

	_, out.Supported = handler.ForSubFilter(d.SubFilter)
	out.Type = d.Type.String()
	out.Filter = d.Filter
	out.SubFilter = d.SubFilter
	out.SignerName = d.Name
	out.Reason = d.Reason
	out.Location = d.Location
	out.ContactInfo = d.ContactInfo
	out.ContentsSize = len(d.Contents)
	out.Certificates = len(d.Certificates)
	if !d.SigningTime.IsZero() {
		out.SigningTime = d.SigningTime.Format(time.RFC3339)
	}
	for _, br := range d.ByteRanges {
		out.ByteRanges = append(out.ByteRanges, br.Offset, br.Size)
	}
	for _, ref := range d.References {
		out.Transforms = append(out.Transforms, string(ref.TransformMethod))
	}
	return out
}

func printInspectTable(w io.Writer, results []*InspectResult) {
	for _, r := range results {
		fmt.Fprintf(w, "%s\n", r.File)
		if r.Document.Version != "" {
			fmt.Fprintf(w, "  PDF %s, %d pages\n", r.Document.Version, r.Document.PageCount)
		}
		for _, p := range r.Document.Problems {
			fmt.Fprintf(w, "  ⚠ %s\n", p)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "  ✗ %s\n", r.Error)
		}

		for _, f := range r.Fields {
			fmt.Fprintf(w, "  %s [%s]\n", f.Name, f.Reference)
			fmt.Fprintf(w, "    Type:      %s\n", f.Type)
			fmt.Fprintf(w, "    SubFilter: %s", f.SubFilter)
			if !f.Supported {
				fmt.Fprint(w, " (unsupported)")
			}
			fmt.Fprintln(w)
			if f.SignerName != "" {
				fmt.Fprintf(w, "    Name:      %s\n", f.SignerName)
			}
			if f.SigningTime != "" {
				fmt.Fprintf(w, "    Signed:    %s\n", f.SigningTime)
			}
			if f.Reason != "" {
				fmt.Fprintf(w, "    Reason:    %s\n", f.Reason)
			}
			if f.Location != "" {
				fmt.Fprintf(w, "    Location:  %s\n", f.Location)
			}
			fmt.Fprintf(w, "    ByteRange: %v\n", f.ByteRanges)
		}
	}
}
