package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/CageChen/fxv/internal/config"
	"github.com/CageChen/fxv/internal/fs"
	"github.com/CageChen/fxv/internal/ingest"
	"github.com/CageChen/fxv/internal/relpath"
	"github.com/CageChen/fxv/internal/resolve"
	"github.com/CageChen/fxv/internal/tree"
	"github.com/CageChen/fxv/internal/workspace"
)

const (
	snapshotUse              = "snapshot <directory>"
	snapshotShortDescription = "write the tree of a directory as JSON"
	snapshotUsageExample     = `  # Snapshot a directory to a file
  fxv snapshot ./docs -o docs.json

  # Snapshot the src directory of a git tag, compact
  fxv snapshot . --git-ref v1.2.0 --sub-path src --compact`

	fetchUse              = "fetch <snapshot.json> [path]"
	fetchShortDescription = "fetch one directory out of a JSON snapshot"
	fetchUsageExample     = `  # Print the root with its direct children only
  fxv fetch docs.json --depth 0

  # Print a subdirectory in full
  fxv fetch docs.json guide/api`

	gitRefFlagName  = "git-ref"
	subPathFlagName = "sub-path"
	excludeFlagName = "exclude"
	compactFlagName = "compact"
	outputFlagName  = "output"
	depthFlagName   = "depth"
)

// ErrDirectoryNotFound is returned by fetch when the path names no directory.
var ErrDirectoryNotFound = errors.New("directory not found")

type snapshotOptions struct {
	gitRef  string
	subPath string
	exclude []string
	compact bool
	output  string
}

func newSnapshotCommand(global *globalOptions) *cobra.Command {
	opts := &snapshotOptions{}

	command := &cobra.Command{
		Use:     snapshotUse,
		Short:   snapshotShortDescription,
		Example: snapshotUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			var fsys fs.FileSystem
			if opts.gitRef != "" {
				fsys = fs.NewGitFS(arguments[0], opts.gitRef)
			} else {
				fsys = fs.NewLocalFS(arguments[0])
			}
			logger, err := global.logger(config.Log{Level: global.logLevel, Format: global.logFormat})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			root, err := ingest.Build(command.Context(), logger, fsys, opts.subPath, opts.exclude)
			if err != nil {
				return err
			}
			if opts.output != "" {
				return writeTreeFile(opts.output, root, opts.compact)
			}
			return writeTree(command.OutOrStdout(), root, opts.compact)
		},
	}

	flags := command.Flags()
	flags.StringVar(&opts.gitRef, gitRefFlagName, "", "read the tree at this git ref instead of the working tree")
	flags.StringVar(&opts.subPath, subPathFlagName, "", "snapshot only this subdirectory")
	flags.StringSliceVarP(&opts.exclude, excludeFlagName, "e", config.DefaultConfig().Exclude, "exclude path pattern")
	flags.BoolVar(&opts.compact, compactFlagName, false, "write compact JSON")
	flags.StringVarP(&opts.output, outputFlagName, "o", "", "write to a file instead of stdout")
	return command
}

type fetchOptions struct {
	depth   int
	compact bool
}

func newFetchCommand() *cobra.Command {
	opts := &fetchOptions{}

	command := &cobra.Command{
		Use:     fetchUse,
		Short:   fetchShortDescription,
		Example: fetchUsageExample,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(command *cobra.Command, arguments []string) error {
			store := workspace.NewStatic("snapshot", tree.NewDirectory(relpath.Root()))
			if err := store.LoadSnapshotFile(arguments[0]); err != nil {
				return err
			}

			p := relpath.Root()
			if len(arguments) == 2 {
				var err error
				if p, err = relpath.New(arguments[1]); err != nil {
					return err
				}
			}
			var fetch resolve.Options
			if opts.depth >= 0 {
				fetch = resolve.WithDepth(opts.depth)
			}

			d, err := store.FetchDirectory(command.Context(), p, fetch)
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("%w: %s", ErrDirectoryNotFound, p)
			}
			return writeTree(command.OutOrStdout(), d, opts.compact)
		},
	}

	flags := command.Flags()
	flags.IntVar(&opts.depth, depthFlagName, -1, "levels of subdirectories to include below the direct children (-1 for all)")
	flags.BoolVar(&opts.compact, compactFlagName, false, "write compact JSON")
	return command
}

// writeTreeFile writes d to a new file at name. A failed close is an error too.
func writeTreeFile(name string, d *tree.Directory, compact bool) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", name, cerr)
		}
	}()
	return writeTree(f, d, compact)
}

func writeTree(w io.Writer, d *tree.Directory, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(d)
}
