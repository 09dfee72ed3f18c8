package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <nodenet>",
		Short: "Render a nodespace as DOT, JSON or HTML",
		Long: `Render the nodes and links of a nodespace.

Examples:
  nodenet graph net1 | dot -Tsvg > net1.svg   # Graphviz source
  nodenet graph net1 --format json            # Nodes, links and counts
  nodenet graph net1 --format html -o g.html  # Self-contained page
  nodenet graph net1 --serve                  # Live page with a step button`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("nodespace")
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			addr, _ := cmd.Flags().GetString("addr")
			refresh, _ := cmd.Flags().GetInt("refresh")

			return withApp(cmd, func(a *app) error {
				n, err := a.openNet(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if serve {
					return runGraphServer(cmd, a, n, addr, refresh, noOpen)
				}

				view, err := n.GetNodespaceData(ns, nil)
				if err != nil {
					return err
				}

				switch visualization.Format(format) {
				case visualization.FormatDOT:
					return writeOutput(cmd, output, []byte(visualization.RenderDOT(view)))
				case visualization.FormatJSON:
					if output == "" {
						return printJSON(cmd, visualization.RenderJSON(view))
					}
					b, err := json.MarshalIndent(visualization.RenderJSON(view), "", "  ")
					if err != nil {
						return fmt.Errorf("encode graph: %w", err)
					}
					return writeOutput(cmd, output, append(b, '\n'))
				case visualization.FormatHTML:
					return writeStaticHTML(cmd, view, output, refresh, noOpen)
				default:
					return fmt.Errorf("unsupported format %q (use 'dot', 'json', or 'html')", format)
				}
			})
		},
	}

	cmd.Flags().String("nodespace", "", "Nodespace to render (default: Root)")
	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local server that renders and steps the nodenet")
	cmd.Flags().String("addr", "", "Listen address for --serve (default: a free localhost port)")
	cmd.Flags().Int("refresh", 0, "Reload the HTML page every N seconds (0 = never)")
	return cmd
}

func writeOutput(cmd *cobra.Command, output string, b []byte) error {
	if output == "" {
		_, err := cmd.OutOrStdout().Write(b)
		return err
	}
	if err := os.WriteFile(output, b, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
	return nil
}

// writeStaticHTML renders the view to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, view nodenet.NodespaceView, output string, refresh int, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(view, refresh)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "nodenet-graph.html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer serves the nodenet until Ctrl-C, then saves it so steps
// taken from the browser are kept.
func runGraphServer(cmd *cobra.Command, a *app, n *nodenet.Nodenet, addr string, refresh int, noOpen bool) error {
	srv := visualization.NewServer(n, addr, refresh)

	srvCtx, srvCancel := context.WithCancel(cmd.Context())
	defer srvCancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			srvCancel()
		case <-srvCtx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}

	listenAddr := srv.Addr()
	if listenAddr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + listenAddr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	serveErr := <-errCh
	if err := a.save(context.Background(), n); err != nil {
		return err
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}
