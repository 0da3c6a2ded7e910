package cli

import (
	"fmt"
	"strings"

	"github.com/fmueller/meetscribe/internal/session"
	"github.com/spf13/cobra"
)

const untitledMarker = "(untitled)"

func newSessionsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}
			listing, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet.")
				return nil
			}
			for _, entry := range listing {
				sess, err := store.Open(entry.Key)
				if err != nil {
					return err
				}
				title, err := displayTitle(sess)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %s  %s\n", entry.Key, entry.Label, title)
			}
			return nil
		},
	}
}

func newShowCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session|label|latest>",
		Short: "Print a session's title and transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}

			sess, err := store.Resolve(args[0])
			if err != nil {
				return err
			}

			label, err := session.Label(sess.Key)
			if err != nil {
				return err
			}
			title, err := displayTitle(sess)
			if err != nil {
				return err
			}
			transcript, err := sess.Transcript()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n\n", label, title)
			if isBlankTranscript(transcript) {
				fmt.Fprintln(out, "(no transcript)")
				return nil
			}
			fmt.Fprintln(out, strings.TrimRight(transcript, "\n"))
			return nil
		},
	}
}

func newTitleCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "title <session|label|latest> <title...>",
		Short: "Give an untitled session its title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.openStore()
			if err != nil {
				return err
			}
			sess, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := sess.SetTitle(strings.Join(args[1:], " ")); err != nil {
				return err
			}

			title, err := sess.Title()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s titled %q\n", sess.Key, title)
			return nil
		},
	}
}

func displayTitle(sess *session.Session) (string, error) {
	titled, err := sess.HasTitle()
	if err != nil || !titled {
		return untitledMarker, err
	}
	return sess.Title()
}
