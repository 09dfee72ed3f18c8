package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/snapshot"
	"github.com/nvandessel/nodenet/internal/store"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <nodenet>",
		Short: "Write a nodenet snapshot file",
		Long: `Write the complete state of a stored nodenet to a snapshot file.

Default location: <data_dir>/snapshots/<uid>-<time>-step<N>.nodenet
Format v2 (the default) is gzip compressed with a checksummed header;
v1 is plain JSON.

Examples:
  nodenet export net1                       # Snapshot to the default location
  nodenet export net1 --format v1 -o a.json # Plain JSON to a specific file
  nodenet export net1 --keep 5              # Keep only the 5 newest snapshots`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			formatName, _ := cmd.Flags().GetString("format")
			keep, _ := cmd.Flags().GetInt("keep")

			var format int
			switch formatName {
			case "v1":
				format = snapshot.FormatV1
			case "v2":
				format = snapshot.FormatV2
			default:
				return fmt.Errorf("unsupported format %q (use 'v1' or 'v2')", formatName)
			}
			if keep < 0 {
				return fmt.Errorf("--keep must be non-negative, got %d", keep)
			}

			return withApp(cmd, func(a *app) error {
				data, err := a.repo.Load(cmd.Context(), args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("nodenet %q not found", args[0])
					}
					return err
				}

				dir := store.SnapshotDir(a.cfg.Storage.DataDir)
				path := output
				if path == "" {
					path = filepath.Join(dir, snapshot.FileName(data.UID, data.Step, time.Now()))
				}
				if err := snapshot.Write(path, data, format); err != nil {
					return fmt.Errorf("export failed: %w", err)
				}

				var pruned []string
				if keep > 0 {
					pruned, err = snapshot.Prune(filepath.Dir(path), data.UID+"-", keep)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: retention failed: %v\n", err)
					}
				}

				return emit(cmd, map[string]any{
					"path":       path,
					"format":     format,
					"step":       data.Step,
					"node_count": len(data.Nodes),
					"link_count": len(data.Links),
					"pruned":     pruned,
				}, "Exported %s (step %d, %d nodes, %d links) to %s\n",
					data.UID, data.Step, len(data.Nodes), len(data.Links), path)
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Snapshot file path")
	cmd.Flags().String("format", "v2", "Snapshot format: v1 or v2")
	cmd.Flags().Int("keep", 0, "Keep only the newest N snapshots of the nodenet (0 = keep all)")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot file into the store",
		Long: `Store the nodenet held by a snapshot file under its own uid, or merge
its contents into an existing nodenet with --merge-into. Colliding node
uids are renamed during a merge.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mergeInto, _ := cmd.Flags().GetString("merge-into")
			force, _ := cmd.Flags().GetBool("force")

			data, err := snapshot.Read(args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				if mergeInto != "" {
					var renamed map[string]string
					n, err := a.mutate(ctx, mergeInto, func(n *nodenet.Nodenet) error {
						var err error
						renamed, err = n.Merge(data)
						return err
					})
					if err != nil {
						return fmt.Errorf("merge failed: %w", err)
					}
					return emit(cmd, map[string]any{"uid": n.UID(), "renamed": renamed},
						"Merged %s into %s (%d node uid(s) renamed)\n", args[0], n.UID(), len(renamed))
				}

				if !force {
					if _, err := a.repo.Load(ctx, data.UID); err == nil {
						return fmt.Errorf("nodenet %q already exists (use --force to replace it)", data.UID)
					}
				}
				n, err := a.fromData(data)
				if err != nil {
					return err
				}
				if err := a.save(ctx, n); err != nil {
					return err
				}
				return emit(cmd, map[string]any{"uid": n.UID(), "name": n.Name(), "step": n.CurrentStep()},
					"Imported %s (%s) at step %d\n", n.UID(), n.Name(), n.CurrentStep())
			})
		},
	}
	cmd.Flags().String("merge-into", "", "Merge into this stored nodenet instead")
	cmd.Flags().Bool("force", false, "Replace a stored nodenet with the same uid")
	return cmd
}

func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots [nodenet]",
		Short: "List snapshot files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verify, _ := cmd.Flags().GetBool("verify")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0] + "-"
			}

			infos, err := snapshot.List(store.SnapshotDir(cfg.Storage.DataDir), prefix)
			if err != nil {
				return err
			}

			type entry struct {
				Path     string    `json:"path"`
				Size     int64     `json:"size"`
				Format   int       `json:"format"`
				Modified time.Time `json:"modified"`
				Status   string    `json:"status,omitempty"`
			}
			entries := make([]entry, 0, len(infos))
			for _, info := range infos {
				e := entry{Path: info.Path, Size: info.Size, Format: info.Format, Modified: info.ModTime}
				if verify {
					e.Status = "ok"
					if err := snapshot.Verify(info.Path); err != nil {
						e.Status = err.Error()
					}
				}
				entries = append(entries, e)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(cmd, map[string]any{"snapshots": entries, "count": len(entries)})
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "PATH\tSIZE\tFORMAT\tMODIFIED"
			if verify {
				header += "\tSTATUS"
			}
			fmt.Fprintln(w, header)
			for _, e := range entries {
				line := fmt.Sprintf("%s\t%d\tv%d\t%s", filepath.Base(e.Path), e.Size, e.Format, e.Modified.Format("2006-01-02 15:04:05"))
				if verify {
					line += "\t" + e.Status
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("verify", false, "Check the checksum of every snapshot")
	return cmd
}
