package commands

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print detailed version information about otxsubs.
With --require, exit non-zero unless the build satisfies a semver constraint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			short, _ := cmd.Flags().GetBool("short")
			require, _ := cmd.Flags().GetString("require")
			out := cmd.OutOrStdout()

			v, verr := semver.NewVersion(version)
			if require != "" {
				if verr != nil {
					return fmt.Errorf("build version %q is not semantic: %w", version, verr)
				}
				c, err := semver.NewConstraint(require)
				if err != nil {
					return fmt.Errorf("invalid constraint %q: %w", require, err)
				}
				if ok, errs := c.Validate(v); !ok {
					return fmt.Errorf("version %s does not satisfy %s: %v", v, require, errs)
				}
			}

			if short {
				fmt.Fprintln(out, version)
				return nil
			}

			fmt.Fprintf(out, "otxsubs Version: %s\n", version)
			if verr == nil {
				channel := "stable"
				if v.Prerelease() != "" {
					channel = "prerelease (" + v.Prerelease() + ")"
				}
				fmt.Fprintf(out, "Release: %d.%d.%d %s\n", v.Major(), v.Minor(), v.Patch(), channel)
			}
			fmt.Fprintf(out, "Git Commit: %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
			fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	cmd.Flags().Bool("short", false, "Print only the version string")
	cmd.Flags().String("require", "", `Fail unless the version satisfies this constraint (e.g. ">= 1.0, < 2")`)
	return cmd
}
