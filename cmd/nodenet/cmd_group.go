package main

import (
	"fmt"
	"os"

	"github.com/nvandessel/nodenet/internal/columnar"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/spf13/cobra"
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Move group vectors and weight matrices through Arrow files",
		Long: `Read and write the activations, thetas and link weights of node
groups as Apache Arrow IPC streams.

A group is every node of a nodespace whose name starts with a prefix,
ordered by name. Groups are formed on demand for each command.

Examples:
  nodenet group export net1 in -o in.arrow                  # Activations of in*
  nodenet group export net1 hid --kind theta -o theta.arrow # Thetas of hid*
  nodenet group import net1 theta.arrow                     # Write them back
  nodenet group weights net1 in hid -o w.arrow              # Weights in* -> hid*
  nodenet group set-weights net1 w.arrow                    # Write them back`,
	}
	cmd.AddCommand(
		newGroupExportCmd(),
		newGroupImportCmd(),
		newGroupWeightsCmd(),
		newGroupSetWeightsCmd(),
	)
	return cmd
}

func newGroupExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <nodenet> <prefix>",
		Short: "Write the activations or thetas of a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("nodespace")
			kind, _ := cmd.Flags().GetString("kind")
			output, _ := cmd.Flags().GetString("output")

			return withApp(cmd, func(a *app) error {
				n, err := a.openNet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var v columnar.Vector
				err = n.Do(func(api *nodenet.NetAPI) error {
					if err := api.GroupNodesByNames(ns, args[1], "", nodenet.SortByName); err != nil {
						return err
					}
					var err error
					v, err = columnar.ExportVector(api, ns, args[1], columnar.Kind(kind))
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to export group: %w", err)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				if err := columnar.WriteVector(f, v); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				return emit(cmd, map[string]any{"path": output, "group": v.Group, "kind": v.Kind, "size": len(v.UIDs)},
					"Wrote %d %s value(s) of group %s to %s\n", len(v.UIDs), v.Kind, v.Group, output)
			})
		},
	}
	cmd.Flags().String("nodespace", "", "Nodespace of the group (default: Root)")
	cmd.Flags().String("kind", string(columnar.KindActivation), "Values to export: activation or theta")
	cmd.Flags().StringP("output", "o", "", "Arrow file to write")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newGroupImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <nodenet> <file>",
		Short: "Write a group vector back into a nodenet",
		Long: `Write the activations or thetas of an Arrow vector file into the
group it was exported from. The group must still hold the same nodes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open vector: %w", err)
			}
			v, err := columnar.ReadVector(f)
			f.Close()
			if err != nil {
				return err
			}

			return withApp(cmd, func(a *app) error {
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					return n.Do(func(api *nodenet.NetAPI) error {
						if err := api.GroupNodesByNames(v.Nodespace, v.Group, "", nodenet.SortByName); err != nil {
							return err
						}
						return columnar.ImportVector(api, v)
					})
				})
				if err != nil {
					return fmt.Errorf("failed to import group: %w", err)
				}
				return emit(cmd, map[string]any{"group": v.Group, "kind": v.Kind, "size": len(v.UIDs)},
					"Set %d %s value(s) of group %s\n", len(v.UIDs), v.Kind, v.Group)
			})
		},
	}
}

func newGroupWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights <nodenet> <from-prefix> <to-prefix>",
		Short: "Write the link weights between two groups",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromNS, _ := cmd.Flags().GetString("from-nodespace")
			toNS, _ := cmd.Flags().GetString("to-nodespace")
			output, _ := cmd.Flags().GetString("output")

			return withApp(cmd, func(a *app) error {
				n, err := a.openNet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var m columnar.Matrix
				err = n.Do(func(api *nodenet.NetAPI) error {
					if err := api.GroupNodesByNames(fromNS, args[1], "", nodenet.SortByName); err != nil {
						return err
					}
					if err := api.GroupNodesByNames(toNS, args[2], "", nodenet.SortByName); err != nil {
						return err
					}
					var err error
					m, err = columnar.ExportMatrix(api, fromNS, args[1], toNS, args[2])
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to export weights: %w", err)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				if err := columnar.WriteMatrix(f, m); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				return emit(cmd, map[string]any{"path": output, "from": m.From, "to": m.To, "rows": len(m.ToUIDs), "columns": len(m.FromUIDs)},
					"Wrote %dx%d weights %s -> %s to %s\n", len(m.ToUIDs), len(m.FromUIDs), m.From, m.To, output)
			})
		},
	}
	cmd.Flags().String("from-nodespace", "", "Nodespace of the source group (default: Root)")
	cmd.Flags().String("to-nodespace", "", "Nodespace of the target group (default: Root)")
	cmd.Flags().StringP("output", "o", "", "Arrow file to write")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newGroupSetWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-weights <nodenet> <file>",
		Short: "Write a weight matrix back into a nodenet",
		Long: `Set the link weights between two groups from an Arrow matrix file.
Zero weights remove links; nonzero weights create or update them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromNS, _ := cmd.Flags().GetString("from-nodespace")
			toNS, _ := cmd.Flags().GetString("to-nodespace")

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open matrix: %w", err)
			}
			m, err := columnar.ReadMatrix(f)
			f.Close()
			if err != nil {
				return err
			}

			return withApp(cmd, func(a *app) error {
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					return n.Do(func(api *nodenet.NetAPI) error {
						if err := api.GroupNodesByNames(fromNS, m.From, "", nodenet.SortByName); err != nil {
							return err
						}
						if err := api.GroupNodesByNames(toNS, m.To, "", nodenet.SortByName); err != nil {
							return err
						}
						return columnar.ImportMatrix(api, fromNS, toNS, m)
					})
				})
				if err != nil {
					return fmt.Errorf("failed to import weights: %w", err)
				}
				return emit(cmd, map[string]any{"from": m.From, "to": m.To, "rows": len(m.ToUIDs), "columns": len(m.FromUIDs)},
					"Set %dx%d weights %s -> %s\n", len(m.ToUIDs), len(m.FromUIDs), m.From, m.To)
			})
		},
	}
	cmd.Flags().String("from-nodespace", "", "Nodespace of the source group (default: Root)")
	cmd.Flags().String("to-nodespace", "", "Nodespace of the target group (default: Root)")
	return cmd
}
