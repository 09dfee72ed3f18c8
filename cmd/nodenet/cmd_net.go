package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/sanitize"
	"github.com/spf13/cobra"
)

func newNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create an empty nodenet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			name := sanitize.Name(args[0])
			if name == "" {
				return fmt.Errorf("nodenet name must not be empty")
			}
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				if uid != "" {
					if _, err := a.repo.Load(ctx, uid); err == nil {
						return fmt.Errorf("nodenet %q already exists", uid)
					}
				}
				n, err := a.newNet(uid, name)
				if err != nil {
					return err
				}
				if err := a.save(ctx, n); err != nil {
					return err
				}
				return emit(cmd, map[string]string{"uid": n.UID(), "name": n.Name()},
					"Created nodenet %s (%s)\n", n.UID(), n.Name())
			})
		},
	}
	cmd.Flags().String("uid", "", "Uid to use instead of a generated one")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored nodenets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				summaries, err := a.repo.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
					return printJSON(cmd, map[string]any{"nodenets": summaries, "count": len(summaries)})
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No nodenets stored. Create one with 'nodenet new <name>'.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "UID\tNAME\tSTEP\tNODES\tLINKS\tUPDATED")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", s.UID, s.Name, s.Step, s.NodeCount, s.LinkCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <nodenet>",
		Short: "Delete a stored nodenet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.repo.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete nodenet %q: %w", args[0], err)
				}
				return emit(cmd, map[string]string{"status": "deleted", "uid": args[0]}, "Deleted nodenet %s\n", args[0])
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <nodenet>",
		Short: "Show the nodes of a nodespace with their activations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("nodespace")
			return withApp(cmd, func(a *app) error {
				n, err := a.openNet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view, err := n.GetNodespaceData(ns, nil)
				if err != nil {
					return err
				}
				if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
					return printJSON(cmd, view)
				}
				printView(cmd, n, view)
				return nil
			})
		},
	}
	cmd.Flags().String("nodespace", "", "Nodespace to show (default: Root)")
	return cmd
}

func printView(cmd *cobra.Command, n *nodenet.Nodenet, view nodenet.NodespaceView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Nodenet %s (%s), nodespace %s, step %d\n\n", n.UID(), n.Name(), view.UID, view.Step)

	uids := make([]string, 0, len(view.Nodes))
	for uid := range view.Nodes {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tTYPE\tNAME\tACTIVATION")
	for _, uid := range uids {
		nd := view.Nodes[uid]
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\n", nd.UID, nd.Type, nd.Name, nd.Activation)
	}
	w.Flush()

	if len(view.Links) > 0 {
		fmt.Fprintln(out)
		for _, l := range view.Links {
			fmt.Fprintf(out, "%s.%s -> %s.%s  w=%.3f\n", l.SourceUID, l.Gate, l.TargetUID, l.Slot, l.Weight)
		}
	}
	if len(view.Nodespaces) > 0 {
		fmt.Fprintf(out, "\n%d child nodespace(s)\n", len(view.Nodespaces))
	}
}

func newAddNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-node <nodenet> <type>",
		Short: "Add a node of a standard or native nodetype",
		Long: `Add a node to a nodespace of a stored nodenet.

Examples:
  nodenet add-node net1 Register --name in1
  nodenet add-node net1 Pipe --nodespace ns2 --param expectation=0.8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			ns, _ := cmd.Flags().GetString("nodespace")
			pairs, _ := cmd.Flags().GetStringArray("param")
			params, err := parseParams(pairs)
			if err != nil {
				return err
			}

			spec := nodenet.NodeSpec{Type: args[1], Nodespace: ns, Name: sanitize.Name(name), Parameters: params}
			if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
				x, _ := cmd.Flags().GetFloat64("x")
				y, _ := cmd.Flags().GetFloat64("y")
				spec.Position = &nodenet.Position{X: x, Y: y}
			}

			return withApp(cmd, func(a *app) error {
				var uid string
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					var err error
					uid, err = n.CreateNode(spec)
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to add node: %w", err)
				}
				return emit(cmd, map[string]string{"uid": uid}, "Created %s node %s\n", args[1], uid)
			})
		},
	}
	cmd.Flags().String("name", "", "Node name")
	cmd.Flags().String("nodespace", "", "Parent nodespace (default: Root)")
	cmd.Flags().Float64("x", 0, "Horizontal position")
	cmd.Flags().Float64("y", 0, "Vertical position")
	cmd.Flags().StringArray("param", nil, "Node parameter as key=value (repeatable)")
	return cmd
}

func newAddNodespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-nodespace <nodenet> <name>",
		Short: "Add a nodespace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, _ := cmd.Flags().GetString("parent")
			return withApp(cmd, func(a *app) error {
				var uid string
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					var err error
					uid, err = n.CreateNodespace("", parent, sanitize.Name(args[1]), nodenet.Position{})
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to add nodespace: %w", err)
				}
				return emit(cmd, map[string]string{"uid": uid}, "Created nodespace %s\n", uid)
			})
		},
	}
	cmd.Flags().String("parent", "", "Parent nodespace (default: Root)")
	return cmd
}

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <nodenet> <source> <target>",
		Short: "Link a gate of one node to a slot of another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _ := cmd.Flags().GetString("gate")
			slot, _ := cmd.Flags().GetString("slot")
			weight, _ := cmd.Flags().GetFloat64("weight")
			certainty, _ := cmd.Flags().GetFloat64("certainty")
			return withApp(cmd, func(a *app) error {
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					return n.Link(args[1], gate, args[2], slot, weight, certainty)
				})
				if err != nil {
					return fmt.Errorf("failed to link: %w", err)
				}
				link := nodenet.Link{SourceUID: args[1], Gate: gate, TargetUID: args[2], Slot: slot, Weight: weight, Certainty: certainty}
				return emit(cmd, link, "Linked %s.%s -> %s.%s (weight %g)\n", args[1], gate, args[2], slot, weight)
			})
		},
	}
	cmd.Flags().String("gate", "gen", "Source gate")
	cmd.Flags().String("slot", "gen", "Target slot")
	cmd.Flags().Float64("weight", 1, "Link weight")
	cmd.Flags().Float64("certainty", 1, "Link certainty")
	return cmd
}

func newUnlinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink <nodenet> <source>",
		Short: "Remove links leaving a node",
		Long:  `Remove links leaving a node. Unset --gate, --target and --slot match anything.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, _ := cmd.Flags().GetString("gate")
			target, _ := cmd.Flags().GetString("target")
			slot, _ := cmd.Flags().GetString("slot")
			return withApp(cmd, func(a *app) error {
				removed := 0
				_, err := a.mutate(cmd.Context(), args[0], func(n *nodenet.Nodenet) error {
					var err error
					removed, err = n.Unlink(args[1], gate, target, slot)
					return err
				})
				if err != nil {
					return fmt.Errorf("failed to unlink: %w", err)
				}
				return emit(cmd, map[string]int{"removed": removed}, "Removed %d link(s)\n", removed)
			})
		},
	}
	cmd.Flags().String("gate", "", "Only links from this gate")
	cmd.Flags().String("target", "", "Only links to this node")
	cmd.Flags().String("slot", "", "Only links into this slot")
	return cmd
}
