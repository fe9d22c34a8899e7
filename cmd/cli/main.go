// Command csv-ingest-cli is a thin REST client over the ingestion
// server: start an ingestion, poll its status, list its decision
// journal, resume a suspended review, and fetch its output.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var baseURL string

func main() {
	root := &cobra.Command{
		Use:   "csv-ingest-cli",
		Short: "Operate a csv-ingest server from the command line",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the csv-ingest server")

	root.AddCommand(startCmd(), statusCmd(), decisionsCmd(), resumeCmd(), outputCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func startCmd() *cobra.Command {
	var file, schemaID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Upload a CSV or XLSX file and start an ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, err := mw.CreateFormFile("file", filepath.Base(file))
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, f); err != nil {
				return err
			}
			if schemaID != "" {
				if err := mw.WriteField("schema_id", schemaID); err != nil {
					return err
				}
			}
			if err := mw.Close(); err != nil {
				return err
			}

			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/ingestions", &buf)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", mw.FormDataContentType())

			return doRequest(req, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the CSV or XLSX file (required)")
	cmd.Flags().StringVar(&schemaID, "schema-id", "", "canonical schema ID to map against (passthrough if omitted)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Get an ingestion's current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/ingestions/"+id, nil)
			if err != nil {
				return err
			}
			return doRequest(req, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ingestion ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func decisionsCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "List an ingestion's decision journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/ingestions/"+id+"/decisions", nil)
			if err != nil {
				return err
			}
			return doRequest(req, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ingestion ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func resumeCmd() *cobra.Command {
	var id string
	var decisions map[string]string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resolve an ingestion's suspended mapping review",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{"decisions": decisions})
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/ingestions/"+id+"/resume", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			return doRequest(req, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ingestion ID (required)")
	cmd.Flags().StringToStringVar(&decisions, "decision", nil, "source_column=target_column, repeatable")
	cmd.MarkFlagRequired("id")
	return cmd
}

func outputCmd() *cobra.Command {
	var id, format, out string
	cmd := &cobra.Command{
		Use:   "output",
		Short: "Fetch a completed ingestion's output artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/ingestions/"+id+"/output?format="+format, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
			}

			w := io.Writer(os.Stdout)
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = io.Copy(w, resp.Body)
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ingestion ID (required)")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or json")
	cmd.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")
	cmd.MarkFlagRequired("id")
	return cmd
}

func doRequest(req *http.Request, w io.Writer) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}
	if len(body) == 0 {
		fmt.Fprintln(w, "ok")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		_, werr := w.Write(body)
		return werr
	}
	_, err = fmt.Fprintln(w, pretty.String())
	return err
}
