package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect, migrate and reset per-digest state",
}

var stateExportOut string

var stateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all digest state as JSON ({id: {last_run, seen_ids}})",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var w io.Writer = os.Stdout
		if stateExportOut != "" && stateExportOut != "-" {
			f, err := os.Create(stateExportOut)
			if err != nil {
				return fmt.Errorf("creating %s: %w", stateExportOut, err)
			}
			defer f.Close()
			w = f
		}
		return db.ExportJSON(w)
	},
}

var stateImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load digest state from a JSON state file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()

		n, err := db.ImportJSON(f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported state for %d digest(s)\n", n)
		return nil
	},
}

var stateResetYes bool

var stateResetCmd = &cobra.Command{
	Use:   "reset [digest]",
	Short: "Forget last run and seen videos for a digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if d, ok := cfg.FindDigest(id); ok {
			id = d.ID
		}

		if !stateResetYes {
			fmt.Printf("Reset state for %s? Its next run will resend recent videos [y/N]: ", id)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			answer = strings.TrimSpace(strings.ToLower(answer))
			if answer != "y" && answer != "yes" {
				return fmt.Errorf("aborted")
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.ResetState(id); err != nil {
			return err
		}
		fmt.Printf("Reset state for %s\n", id)
		return nil
	},
}

func init() {
	stateExportCmd.Flags().StringVarP(&stateExportOut, "out", "o", "", "Output file (default stdout)")
	stateResetCmd.Flags().BoolVarP(&stateResetYes, "yes", "y", false, "Do not ask for confirmation")

	stateCmd.AddCommand(stateExportCmd)
	stateCmd.AddCommand(stateImportCmd)
	stateCmd.AddCommand(stateResetCmd)
}
