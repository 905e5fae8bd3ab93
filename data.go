package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stevemurr/lifeos/db"
	"github.com/stevemurr/lifeos/model"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "data",
	Short:   "Create the local store and seed sample data",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "COLLECTION\tRECORDS\n")
		for _, c := range db.DataCollections() {
			n, err := d.Count(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\n", c, n)
		}
		return w.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Write every collection and setting as one JSON document",
	Long: `Write a backup of the local store. The document has the same format
as the cloud sync payload and can be restored with "lifeos import".
Without a file argument the document goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		doc, err := d.ExportAllData(cmd.Context())
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if len(args) == 0 {
			_, err := cmd.OutOrStdout().Write(b)
			return err
		}
		if err := os.WriteFile(args[0], b, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Upsert the records and settings of an exported document",
	Long: `Restore a backup written by "lifeos export". Records are upserted by key;
collections missing from the document are left untouched and nothing is
deleted. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		var doc db.ExportDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.ImportAllData(cmd.Context(), &doc); err != nil {
			return err
		}
		for _, f := range doc.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipped malformed field %q\n", f)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d collections and %d settings\n", len(doc.Collections), len(doc.Settings))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:     "get <collection> [key]",
	GroupID: "data",
	Short:   "Print a collection, or one record of it, as JSON",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if len(args) == 2 {
			doc, err := d.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("no record %q in %s", args[1], args[0])
			}
			return printJSON(cmd.OutOrStdout(), doc)
		}
		records, err := d.GetAll(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var putCmd = &cobra.Command{
	Use:     "put <collection> <json|->",
	GroupID: "data",
	Short:   "Upsert a record, or an array of records, into a collection",
	Example: `  lifeos put stocks '{"symbol":"AAPL","name":"Apple","shares":10,"avgPrice":150,"currentPrice":175}'
  cat goals.json | lifeos put goals -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readArg(cmd, args[1])
		if err != nil {
			return err
		}
		records, err := parseRecords(raw)
		if err != nil {
			return err
		}
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.SaveAll(cmd.Context(), args[0], records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d record(s) to %s\n", len(records), args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <collection> <key>",
	GroupID: "data",
	Short:   "Remove a record by key",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		return d.Delete(cmd.Context(), args[0], args[1])
	},
}

var settingCmd = &cobra.Command{
	Use:     "setting",
	GroupID: "data",
	Short:   "Read or write scalar settings such as car_mileage",
}

var settingGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting; prints nothing if it was never set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		val, err := d.GetSetting(cmd.Context(), args[0])
		if err != nil || val == nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), val)
	},
}

var settingSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting; values that parse as JSON are stored as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		return d.SetSetting(cmd.Context(), args[0], parseScalar(args[1]))
	},
}

var maintenanceCmd = &cobra.Command{
	Use:     "maintenance",
	GroupID: "data",
	Short:   "Show maintenance health at the current mileage and the service log",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		items, err := d.MaintenanceStatus(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ITEM\tSTATUS\tHEALTH\tDRIVEN\tREMAINING\n")
		for _, it := range items {
			h := it.Health
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%d km\t%d km\n", it.Name, h.Status, h.HealthPercent, h.Driven, h.Remaining)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		log, err := d.ServiceLog(cmd.Context())
		if err != nil || len(log) == 0 {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "DATE\tITEM\tMILEAGE\tCOST\tSHOP\n")
		for _, r := range log {
			fmt.Fprintf(w, "%s\t%s\t%d km\t%s\t%s\n", r.Date, r.ItemLabel, r.Mileage, r.Cost.StringFixed(0), r.ShopName)
		}
		return w.Flush()
	},
}

var portfolioCmd = &cobra.Command{
	Use:     "portfolio",
	GroupID: "data",
	Short:   "Show stock holdings with value and gain",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		holdings, err := d.Holdings(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "SYMBOL\tSHARES\tVALUE\tGAIN\tGAIN %%\n")
		for _, h := range holdings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\n", h.Symbol, h.Shares, h.Value().StringFixed(2), h.Gain().StringFixed(2), h.GainPercent())
		}
		s := model.SummarizePortfolio(holdings)
		fmt.Fprintf(w, "TOTAL\t\t%s\t%s\t\n", s.Value.StringFixed(2), s.Gain.StringFixed(2))
		return w.Flush()
	},
}

func init() {
	settingCmd.AddCommand(settingGetCmd, settingSetCmd)
	rootCmd.AddCommand(initCmd, exportCmd, importCmd, getCmd, putCmd, deleteCmd, settingCmd, maintenanceCmd, portfolioCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// readArg returns an inline JSON argument, or stdin for "-".
func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return []byte(arg), nil
}

func parseRecords(raw []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
		return records, nil
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if record == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return []map[string]any{record}, nil
}

func parseScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
