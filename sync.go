package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/stevemurr/lifeos/cloudsync"
	"github.com/stevemurr/lifeos/prefs"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Copy local data to or from the cloud blob",
	Long: `Sync the whole local store with one remote JSON blob.

  create  upload local data as a new blob and remember its id
  push    overwrite the remote blob with local data
  pull    replace local records with the remote blob
  status  show the sync id and the time of the last successful sync

push and pull accept an explicit id; pull with an id also links this
device to it.`,
}

func init() {
	f := syncCmd.PersistentFlags()
	f.String("endpoint", "", "blob service URL (default https://api.npoint.io)")
	f.Duration("timeout", 0, "HTTP timeout for sync requests (default 30s)")
	mustBind(vp.BindPFlag("sync.endpoint", f.Lookup("endpoint")))
	mustBind(vp.BindPFlag("sync.timeout", f.Lookup("timeout")))

	syncCmd.AddCommand(syncCreateCmd, syncPushCmd, syncPullCmd, syncStatusCmd, syncLinkCmd)
	rootCmd.AddCommand(syncCmd)
}

// newController wires the controller to the local store, the configured
// endpoint and the preferences file. The caller closes the store.
func newController(cmd *cobra.Command) (*cloudsync.Controller, func(), error) {
	p, err := prefs.NewFileStore(cfg.PrefsPath())
	if err != nil {
		return nil, nil, err
	}
	d, err := openDB(cmd)
	if err != nil {
		return nil, nil, err
	}
	remote := cloudsync.NewHTTPRemote(cfg.Sync.Endpoint, nil, cfg.Sync.Timeout)
	c := cloudsync.New(d, remote, p,
		cloudsync.WithLogger(logger),
		cloudsync.WithMetrics(collect),
		cloudsync.WithCooldowns(cfg.Sync.SuccessCooldown, cfg.Sync.ErrorCooldown),
		cloudsync.OnReload(func() {
			fmt.Fprintln(cmd.ErrOrStderr(), "Local data was replaced; restart any open LifeOS views to reload it.")
		}),
	)
	return c, func() {
		c.Close()
		d.Close()
	}, nil
}

var syncCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload local data as a new blob and store its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := newController(cmd)
		if err != nil {
			return err
		}
		defer done()
		id, err := c.Create(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created sync id %s\n", id)
		fmt.Fprintf(cmd.OutOrStdout(), "Use \"lifeos sync pull %s\" on another device to connect it.\n", id)
		return nil
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push [id]",
	Short: "Overwrite the remote blob with local data",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := newController(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := c.Push(cmd.Context(), optionalArg(args)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Pushed local data")
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull [id]",
	Short: "Replace local records with the remote blob",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := newController(cmd)
		if err != nil {
			return err
		}
		defer done()
		if err := c.Pull(cmd.Context(), optionalArg(args)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Pulled remote data")
		return nil
	},
}

var syncLinkCmd = &cobra.Command{
	Use:   "link <id>",
	Short: "Use an existing sync id without transferring data; \"\" unlinks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := prefs.NewFileStore(cfg.PrefsPath())
		if err != nil {
			return err
		}
		c := cloudsync.New(nil, nil, p, cloudsync.WithLogger(logger))
		if err := c.SetSyncID(args[0]); err != nil {
			return err
		}
		if args[0] == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Unlinked sync id")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Linked sync id %s\n", args[0])
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync id and last successful sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := prefs.NewFileStore(cfg.PrefsPath())
		if err != nil {
			return err
		}
		// Status does not need the local store, so it works before the
		// store has ever been opened.
		s := cloudsync.New(nil, nil, p, cloudsync.WithLogger(logger)).Status()
		out := cmd.OutOrStdout()
		if s.SyncID == "" {
			fmt.Fprintln(out, "Sync id:   (none)  run \"lifeos sync create\" or \"lifeos sync pull <id>\"")
		} else {
			fmt.Fprintf(out, "Sync id:   %s\n", s.SyncID)
		}
		fmt.Fprintf(out, "Endpoint:  %s\n", cfg.Sync.Endpoint)
		if s.LastSyncTime.IsZero() {
			fmt.Fprintln(out, "Last sync: never")
		} else {
			fmt.Fprintf(out, "Last sync: %s (%s)\n", humanize.Time(s.LastSyncTime), s.LastSyncTime.Local().Format(time.DateTime))
		}
		return nil
	},
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
