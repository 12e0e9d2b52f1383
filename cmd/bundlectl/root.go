package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/italolelis/bundle_installer/internal/bundle"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/spf13/cobra"
)

const defaultAddr = "http://127.0.0.1:9091"

type apiClient struct {
	addr string
	http *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.addr, "/")+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("contact daemon at %s: %w", c.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		var apiErr struct {
			Error string `json:"error"`
		}

		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}

		return resp.StatusCode, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func newRootCommand() *cobra.Command {
	client := &apiClient{http: &http.Client{Timeout: 30 * time.Second}}

	rootCmd := &cobra.Command{
		Use:           "bundlectl",
		Short:         "Control the premium bundle installer daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&client.addr, "addr", defaultAddr, "Address of the bundle installer API")

	rootCmd.AddCommand(newStatusCommand(client))
	rootCmd.AddCommand(newLaunchCommand(client, "start", "Install the premium bundle once"))
	rootCmd.AddCommand(newLaunchCommand(client, "retry", "Install the premium bundle, retrying on failure"))
	rootCmd.AddCommand(newToggleCommand(client, "pause", "Pause the running download"))
	rootCmd.AddCommand(newToggleCommand(client, "resume", "Resume a paused download"))
	rootCmd.AddCommand(newDescriptorCommand(client))

	return rootCmd
}

func newStatusCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the bundle install state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st bundle.State
			if _, err := client.do(cmd.Context(), http.MethodGet, "/bundle", nil, &st); err != nil {
				return err
			}

			printState(cmd.OutOrStdout(), st)

			return nil
		},
	}
}

func newLaunchCommand(client *apiClient, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.do(cmd.Context(), http.MethodPost, "/bundle/"+action, nil, nil)
			if err != nil {
				return err
			}

			if status == http.StatusConflict {
				return fmt.Errorf("an install is already running")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s accepted\n", action)

			return nil
		},
	}
}

func newToggleCommand(client *apiClient, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.do(cmd.Context(), http.MethodPost, "/bundle/"+action, nil, nil); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s requested\n", action)

			return nil
		},
	}
}

func newDescriptorCommand(client *apiClient) *cobra.Command {
	var desc storage.Descriptor

	cmd := &cobra.Command{
		Use:   "descriptor",
		Short: "Set where the next install downloads the bundle from",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.do(cmd.Context(), http.MethodPut, "/bundle/descriptor", desc, nil); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "descriptor updated")

			return nil
		},
	}

	cmd.Flags().StringVar(&desc.URL, "url", "", "Bundle archive URL")
	cmd.Flags().StringVar(&desc.Version, "version", "", "Bundle version")
	cmd.Flags().StringVar(&desc.Checksum, "checksum", "", "Bundle checksum")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func printState(w io.Writer, st bundle.State) {
	fmt.Fprintf(w, "Status:    %s\n", st.Status)

	if st.Progress != nil {
		fmt.Fprintf(w, "Progress:  %d%%\n", *st.Progress)
	}

	if st.InstalledVersion != nil {
		fmt.Fprintf(w, "Installed: %s\n", *st.InstalledVersion)
	}

	if st.Error != nil {
		fmt.Fprintf(w, "Error:     %s\n", *st.Error)
	}

	if st.Descriptor.URL != "" {
		fmt.Fprintf(w, "Bundle:    %s", st.Descriptor.URL)

		if st.Descriptor.Version != "" {
			fmt.Fprintf(w, " (%s)", st.Descriptor.Version)
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Running:   %t\n", st.Running)
}
