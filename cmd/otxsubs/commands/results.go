package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/otxsubs/internal/storage"
)

func NewResultsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results [domain]",
		Short: "List saved subdomain files",
		Long: `List the alienvault_subs_<domain>.txt files in the output directory
with their host counts, or print the hosts saved for one domain.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResults,
	}
	cmd.Flags().StringP("dir", "D", "", "Directory to inspect (defaults to output_dir)")
	return cmd
}

func runResults(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = viper.GetString("output_dir")
	}

	ls, err := storage.NewLocalStorage(dir, logrus.StandardLogger())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		hosts, err := ls.LoadSubdomains(args[0])
		if err != nil {
			return fmt.Errorf("no saved results for %s: %w", args[0], err)
		}
		for _, h := range hosts {
			fmt.Fprintln(out, h)
		}
		return nil
	}

	domains, err := ls.ListResults()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		logrus.Infof("No saved results in %s", dir)
		return nil
	}
	sort.Strings(domains)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tSUBDOMAINS\tFILE")
	for _, d := range domains {
		hosts, err := ls.LoadSubdomains(d)
		if err != nil {
			logrus.Warnf("Skipping %s: %v", d, err)
			continue
		}
		path, _ := ls.PathFor(d)
		fmt.Fprintf(w, "%s\t%d\t%s\n", d, len(hosts), path)
	}
	return w.Flush()
}
