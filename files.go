package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/filemgr/internal/api"
)

// maxParallelOps caps concurrent requests for multi-path commands.
const maxParallelOps = 4

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create folders",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMkdir,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move or rename a file or folder",
		Long: `Move or rename an item. If the destination is an existing folder the
item is moved into it under its current name; otherwise the destination is
the item's new path.`,
		Args: cobra.ExactArgs(2),
		RunE: runMv,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or folders",
		Long: `Delete one or more items. Folder deletion removes all contents and
must be confirmed with --recursive (-r).`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

// withClient opens the session, checks there is a login to use, and runs fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, client *api.Client) error) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	app, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.requireLogin(); err != nil {
		return err
	}

	return fn(ctx, cc, app.Client)
}

func runLs(cmd *cobra.Command, args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}

	return withClient(cmd, func(ctx context.Context, cc *CLIContext, client *api.Client) error {
		cc.Logger.Debug("ls", "path", dir)

		items, err := client.ListFolder(ctx, dir)
		if err != nil {
			return fmt.Errorf("listing %q: %w", dir, err)
		}

		sortItems(items)

		if cc.Flags.JSON {
			return printItemsJSON(cc, items)
		}

		printItemsTable(cc, items)

		return nil
	})
}

// itemJSON is the JSON output schema for a single item.
type itemJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at"`
}

func toItemJSON(item *api.Item) itemJSON {
	return itemJSON{
		ID:         item.ID,
		Name:       item.Name,
		Path:       item.Path,
		Size:       item.Size,
		IsFolder:   item.IsFolder,
		ModifiedAt: item.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// sortItems orders folders first, then by name.
func sortItems(items []api.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsFolder != items[j].IsFolder {
			return items[i].IsFolder
		}

		return items[i].Name < items[j].Name
	})
}

func printItemsJSON(cc *CLIContext, items []api.Item) error {
	out := make([]itemJSON, 0, len(items))
	for i := range items {
		out = append(out, toItemJSON(&items[i]))
	}

	return printJSON(cc.Stdout, out)
}

func printItemsTable(cc *CLIContext, items []api.Item) {
	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		name := items[i].Name
		size := formatSize(items[i].Size)

		if items[i].IsFolder {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(items[i].ModifiedAt)})
	}

	printTable(cc.Stdout, headers, rows)
}

func runStat(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, cc *CLIContext, client *api.Client) error {
		item, err := client.Stat(ctx, args[0])
		if err != nil {
			return fmt.Errorf("stat %q: %w", args[0], err)
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, toItemJSON(item))
		}

		kind := "file"
		if item.IsFolder {
			kind = "folder"
		}

		fmt.Fprintf(cc.Stdout, "Name:     %s\n", item.Name)
		fmt.Fprintf(cc.Stdout, "Path:     %s\n", item.Path)
		fmt.Fprintf(cc.Stdout, "Type:     %s\n", kind)
		fmt.Fprintf(cc.Stdout, "Size:     %s\n", formatSize(item.Size))
		fmt.Fprintf(cc.Stdout, "Modified: %s\n", item.ModifiedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(cc.Stdout, "ID:       %s\n", item.ID)

		return nil
	})
}

// splitParentAndName splits a remote path into its cleaned parent folder and
// final element. For "/foo/bar" returns ("/foo", "bar").
func splitParentAndName(p string) (string, string) {
	clean := api.CleanPath(p)

	return path.Dir(clean), path.Base(clean)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, cc *CLIContext, client *api.Client) error {
		return forEachPath(ctx, args, func(ctx context.Context, p string) error {
			parent, name := splitParentAndName(p)

			item, err := client.CreateFolder(ctx, parent, name)
			if err != nil {
				return fmt.Errorf("creating %q: %w", p, err)
			}

			cc.Statusf("Created %s\n", item.Path)

			return nil
		})
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]

	return withClient(cmd, func(ctx context.Context, cc *CLIContext, client *api.Client) error {
		item, err := moveItem(ctx, client, src, dst)
		if err != nil {
			return fmt.Errorf("moving %q to %q: %w", src, dst, err)
		}

		cc.Logger.Debug("moved", "from", api.CleanPath(src), "to", item.Path)
		cc.Statusf("Moved %s -> %s\n", api.CleanPath(src), item.Path)

		return nil
	})
}

// mover is the slice of the API client moveItem needs.
type mover interface {
	Stat(ctx context.Context, p string) (*api.Item, error)
	Rename(ctx context.Context, p, newName string) (*api.Item, error)
	Move(ctx context.Context, p, newParent, newName string) (*api.Item, error)
}

// moveItem resolves mv semantics: into an existing folder, a rename within
// the same folder, or a move under a new name.
func moveItem(ctx context.Context, client mover, src, dst string) (*api.Item, error) {
	target, err := client.Stat(ctx, dst)

	switch {
	case err == nil && target.IsFolder:
		return client.Move(ctx, src, dst, "")
	case err == nil:
		return nil, fmt.Errorf("%w: destination exists", api.ErrConflict)
	case !errors.Is(err, api.ErrNotFound):
		return nil, err
	}

	srcParent, _ := splitParentAndName(src)
	dstParent, dstName := splitParentAndName(dst)

	if srcParent == dstParent {
		return client.Rename(ctx, src, dstName)
	}

	return client.Move(ctx, src, dstParent, dstName)
}

func runRm(cmd *cobra.Command, args []string) error {
	recursive, _ := cmd.Flags().GetBool("recursive")

	return withClient(cmd, func(ctx context.Context, cc *CLIContext, client *api.Client) error {
		return forEachPath(ctx, args, func(ctx context.Context, p string) error {
			if err := removeItem(ctx, client, p, recursive); err != nil {
				return err
			}

			cc.Statusf("Deleted %s\n", api.CleanPath(p))

			return nil
		})
	})
}

// remover is the slice of the API client removeItem needs.
type remover interface {
	Stat(ctx context.Context, p string) (*api.Item, error)
	Delete(ctx context.Context, p string) error
}

func removeItem(ctx context.Context, client remover, p string, recursive bool) error {
	item, err := client.Stat(ctx, p)
	if err != nil {
		return fmt.Errorf("stat %q: %w", p, err)
	}

	if item.IsFolder && !recursive {
		return fmt.Errorf("%q is a folder: use --recursive (-r) to delete it and its contents", p)
	}

	if err := client.Delete(ctx, p); err != nil {
		return fmt.Errorf("deleting %q: %w", p, err)
	}

	return nil
}

// forEachPath runs fn for every path with bounded parallelism. The first
// failure cancels the rest.
func forEachPath(ctx context.Context, paths []string, fn func(ctx context.Context, p string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelOps)

	for _, p := range paths {
		g.Go(func() error {
			return fn(gctx, p)
		})
	}

	return g.Wait()
}
