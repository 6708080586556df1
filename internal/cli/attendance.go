package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"guardattend/internal/attendance"
	"guardattend/internal/bootstrap"
	"guardattend/internal/photos"
	"guardattend/internal/qrcodes"
)

func newInitCommand(root *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directories, both tables and the sample QR codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the app creates directories and initializes tables.
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				if _, err := qrcodes.EnsureSamples(app.Config.QRDir()); err != nil {
					return WrapExitError(ExitFailure, "sample qr codes", err)
				}
				return out.Success(map[string]string{"data_dir": app.Config.DataDir, "store": app.Config.StoreBackend},
					"initialized %s store in %s", app.Config.StoreBackend, app.Config.DataDir)
			})
		},
	}
}

func newSampleQRCommand(root *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sample-qr",
		Short: "Write sample QR_START and QR_END images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				paths, err := qrcodes.EnsureSamples(app.Config.QRDir())
				if err != nil {
					return WrapExitError(ExitFailure, "sample qr codes", err)
				}
				return out.Success(paths, "sample QR codes:\n  %s\n  %s", paths[0], paths[1])
			})
		},
	}
}

type recordOptions struct {
	UserID    string
	Action    string
	Payload   string
	PhotoPath string
	Latitude  string
	Longitude string
}

func newRecordCommand(root *RootOptions, open Opener) *cobra.Command {
	opts := &recordOptions{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an attendance event for a registered guard",
		Long: `Record an attendance event. Without --lat/--lon the position is looked up
from this host's IP address; address, pincode and plus code are derived from it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				return runRecord(cmd, app, out, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.UserID, "user-id", "u", "", "registered user id (required)")
	cmd.Flags().StringVarP(&opts.Action, "action", "a", attendance.ActionQRStart, "LOGIN_PHOTO, QR_START or QR_END")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "scanned QR payload (required for QR actions)")
	cmd.Flags().StringVar(&opts.PhotoPath, "photo", "", "photo file for LOGIN_PHOTO")
	cmd.Flags().StringVar(&opts.Latitude, "lat", "", "latitude")
	cmd.Flags().StringVar(&opts.Longitude, "lon", "", "longitude")
	return cmd
}

func runRecord(cmd *cobra.Command, app *bootstrap.App, out *Output, opts *recordOptions) error {
	ctx := cmd.Context()
	u, err := app.Users.Find(ctx, opts.UserID)
	if err != nil {
		return WrapExitError(ExitFailure, "lookup user", err)
	}
	if u == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("user %q not found", opts.UserID))
	}

	capt := attendance.Capture{
		UserID:    u.UserID,
		Action:    opts.Action,
		QRPayload: opts.Payload,
		Latitude:  opts.Latitude,
		Longitude: opts.Longitude,
	}
	if err := capt.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "record", err)
	}
	if opts.PhotoPath != "" {
		f, err := os.Open(opts.PhotoPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "open photo", err)
		}
		defer f.Close()
		capt.PhotoPath, err = app.Photos.Save(ctx, photos.ObjectName(u.UserID, opts.PhotoPath, time.Now()), f)
		if err != nil {
			return WrapExitError(ExitFailure, "store photo", err)
		}
	}

	id, err := app.Captures.Record(ctx, capt)
	if err != nil {
		return WrapExitError(ExitFailure, "record", err)
	}
	return out.Success(map[string]string{"record_id": id}, "recorded %s for %s (record %s)", capt.Action, u.UserID, id)
}

func bindFilterFlags(cmd *cobra.Command, f *attendance.Filter) {
	cmd.Flags().StringVarP(&f.UserID, "user-id", "u", "", "user id substring (case-insensitive)")
	cmd.Flags().StringVar(&f.DateFrom, "from", "", "earliest timestamp, e.g. 2024-03-01 or 2024-03-01 08:00:00")
	cmd.Flags().StringVar(&f.DateTo, "to", "", "latest timestamp (inclusive)")
	cmd.Flags().StringVarP(&f.Action, "action", "a", "", "exact action")
}

func newQueryCommand(root *RootOptions, open Opener) *cobra.Command {
	var filter attendance.Filter
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List attendance records matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				recs, err := app.Attendance.Query(cmd.Context(), filter)
				if err != nil {
					return queryError(err)
				}
				if out.JSON() {
					return out.Success(recs, "")
				}
				tw := tabwriter.NewWriter(out.Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "RECORD\tUSER\tTIMESTAMP\tACTION\tSOURCE\tPLUS CODE\tADDRESS")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.RecordID, r.UserID, r.Timestamp, r.Action, r.LocationSource, r.PlusCode, r.Address)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out.Writer, "%d record(s)\n", len(recs))
				return nil
			})
		},
	}
	bindFilterFlags(cmd, &filter)
	return cmd
}

func newExportCommand(root *RootOptions, open Opener) *cobra.Command {
	var (
		filter attendance.Filter
		path   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export filtered attendance records to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, open, func(app *bootstrap.App, out *Output) error {
				recs, err := app.Attendance.Query(cmd.Context(), filter)
				if err != nil {
					return queryError(err)
				}
				if err := attendance.ExportFile(path, recs); err != nil {
					return WrapExitError(ExitFailure, "export", err)
				}
				return out.Success(map[string]any{"path": path, "count": len(recs)},
					"exported %d record(s) to %s", len(recs), path)
			})
		},
	}
	bindFilterFlags(cmd, &filter)
	cmd.Flags().StringVarP(&path, "out", "o", "attendance_export.xlsx", "output file")
	return cmd
}

func queryError(err error) error {
	if errors.Is(err, attendance.ErrInvalidFilter) {
		return WrapExitError(ExitCommandError, "query", err)
	}
	return WrapExitError(ExitFailure, "query", err)
}
