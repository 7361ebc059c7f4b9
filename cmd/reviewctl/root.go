package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/finishline/internal/reviewclient"
)

// Environment fallbacks for the global flags.
const (
	envURL  = "FINISHLINE_URL"
	envUser = "FINISHLINE_USER"
	envRole = "FINISHLINE_ROLE"
)

type globalFlags struct {
	url     string
	user    string
	role    string
	timeout time.Duration
	json    bool
}

func (g *globalFlags) client() (*reviewclient.Client, error) {
	return reviewclient.NewClient(g.url,
		reviewclient.WithIdentity(g.user, g.role),
		reviewclient.WithTimeout(g.timeout),
	)
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Review athlete recognitions in the finishline validation queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.url, "url", envOr(envURL, "http://localhost:8080"), "finishline base URL (env "+envURL+")")
	pf.StringVar(&g.user, "user", envOr(envUser, os.Getenv("USER")), "reviewer id sent as X-Auth-User (env "+envUser+")")
	pf.StringVar(&g.role, "role", envOr(envRole, "editor"), "role sent as X-Auth-Role (env "+envRole+")")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "HTTP request timeout")
	pf.BoolVar(&g.json, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newQueueCommand(g),
		newClaimCommand(g),
		newApproveCommand(g),
		newRejectCommand(g),
		newReassignCommand(g),
		newImageCommand(g),
		newSubmitCommand(g),
		newStatsCommand(g),
	)
	return root
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printed(cmd *cobra.Command, g *globalFlags, v any, table func()) error {
	if g.json {
		return writeJSON(cmd, v)
	}
	table()
	return nil
}

func missingFlag(name string) error {
	return fmt.Errorf("--%s is required", name)
}
