package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ecodigital/activity"
	"ecodigital/client"
	"ecodigital/session"
	"ecodigital/utils"
)

type clientFlags struct {
	api         string
	sessionFile string
}

func newClientCommand() *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Use the API as a mobile user",
	}
	def := os.Getenv("ECODIGITAL_API_URL")
	if def == "" {
		def = "http://localhost:5200"
	}
	cmd.PersistentFlags().StringVar(&f.api, "api", def, "API base URL")
	cmd.PersistentFlags().StringVar(&f.sessionFile, "session", "", "session file (defaults to the user config dir)")

	cmd.AddCommand(
		newLoginCommand(f),
		newLogoutCommand(f),
		newWhoamiCommand(f),
		newMissionsCommand(f),
		newStartCommand(f),
		newCompleteCommand(f),
		newFeedCommand(f),
	)
	return cmd
}

// open restores the saved session and returns a client plus a func that
// persists whatever state the command ends in.
func (f *clientFlags) open() (*client.Client, func() error, error) {
	path := f.sessionFile
	if path == "" {
		p, err := session.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	st, err := session.Load(path)
	if err != nil {
		return nil, nil, err
	}
	store := session.NewStore()
	store.Restore(st)
	c := client.New(f.api, store)
	return c, func() error { return session.Save(path, store.State()) }, nil
}

func newLoginCommand(f *clientFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, save, err := f.open()
			if err != nil {
				return err
			}
			if c.Store.State().Status == session.SignedIn {
				c.Store.Restore(session.State{})
			}
			st, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Olá, %s!\n", st.Profile.FullName)
			if st.RequiresPasswordChange() {
				fmt.Fprintln(cmd.OutOrStdout(), "Você precisa trocar a senha provisória antes de continuar.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, save, err := f.open()
			if err != nil {
				return err
			}
			logoutErr := c.Logout(cmd.Context())
			if err := save(); err != nil {
				return err
			}
			return logoutErr
		},
	}
}

func newWhoamiCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile and patent progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, save, err := f.open()
			if err != nil {
				return err
			}
			sum, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			if err := save(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) · %s\n", sum.Profile.FullName, sum.Initials, sum.Profile.Role)
			fmt.Fprintf(out, "%d XP · %s", sum.Profile.XPPoints, sum.Patent.Name)
			if sum.NextPatent != nil {
				fmt.Fprintf(out, " · %.0f%% até %s", sum.Progress, sum.NextPatent.Name)
			}
			fmt.Fprintln(out)
			if sum.Position != nil {
				fmt.Fprintf(out, "Ranking: %dº de %d\n", sum.Position.Rank, sum.Position.Total)
			}
			return nil
		},
	}
}

func newMissionsCommand(f *clientFlags) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "missions [id]",
		Short: "List missions, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := f.open()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				m, err := c.Mission(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s [%s] +%d XP\n%s\n", m.Title, m.Status, m.XPReward, m.Description)
				for _, s := range m.Steps {
					fmt.Fprintf(out, "  %d. %s\n", s.Order, s.Text)
				}
				return nil
			}

			list, err := c.Missions(cmd.Context(), status)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tXP\tTITLE")
			for _, m := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.ID, m.Status, m.XPReward, m.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new, in_progress or completed")
	return cmd
}

func newStartCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <mission-id>",
		Short: "Start a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := f.open()
			if err != nil {
				return err
			}
			started, err := c.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if started {
				fmt.Fprintln(cmd.OutOrStdout(), "Missão iniciada.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Missão já estava em andamento.")
			}
			return nil
		},
	}
}

func newCompleteCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <mission-id> <image>",
		Short: "Finish a mission with a photo as evidence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := f.open()
			if err != nil {
				return err
			}
			ext, err := utils.ImageExt(args[1])
			if err != nil {
				return err
			}
			file, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer file.Close()
			img, err := utils.ReadImageFrom(file, ext, utils.MaxEvidenceBytes)
			if err != nil {
				return err
			}

			res, err := c.Complete(cmd.Context(), args[0], args[1], img.Reader())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s +%d XP (total %d)\n", res.Message, res.XPEarned, res.XPPoints)
			if res.RankUp {
				fmt.Fprintf(out, "Nova patente: %s!\n", res.Patent.Name)
			}
			return nil
		},
	}
}

func newFeedCommand(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Show the company's latest activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := f.open()
			if err != nil {
				return err
			}
			items, err := c.Feed(cmd.Context())
			if err != nil {
				return err
			}
			printFeed(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func printFeed(w io.Writer, items []activity.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Nenhuma atividade recente.")
		return
	}
	for _, it := range items {
		mark := "·"
		if it.Trophy {
			mark = "🏆"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, it.Text, it.When)
	}
}
