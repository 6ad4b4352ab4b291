package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/device"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/adb"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

var (
	devicesFormat  string
	devicesWorkers int
)

// deviceReport is one row of the devices command.
type deviceReport struct {
	Serial   string `json:"serial"`
	State    string `json:"state"`
	Model    string `json:"model,omitempty"`
	Emulator bool   `json:"emulator"`
	Android  string `json:"android,omitempty"`
	SDK      int    `json:"sdk,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Error    string `json:"error,omitempty"`
}

type deviceProbe struct {
	android string
	sdk     int
	tier    string
}

var devicesCmd = &cobra.Command{
	Use:   "devices [serial...]",
	Short: "List connected Android devices",
	Long: `List the devices adb can see and probe each online device for its
Android version and the installer tier that will be used on it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := adb.New(adb.Config{Path: cfg.ADB.Path}, utils.WithComponent("adb"))
		if err != nil {
			return err
		}

		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		serials, err := resolveTargetDevices(ctx, client, args)
		if err != nil {
			return err
		}

		reports := make(map[string]*deviceReport, len(devices))
		order := make([]string, 0, len(devices))
		for _, d := range devices {
			reports[d.Serial] = &deviceReport{
				Serial:   d.Serial,
				State:    d.State,
				Model:    d.Model,
				Emulator: d.IsEmulator,
			}
			order = append(order, d.Serial)
		}

		mgr := device.NewManager(device.WithWorkerLimit[deviceProbe](devicesWorkers))
		results := mgr.Run(ctx, serials, func(ctx context.Context, serial string) (deviceProbe, error) {
			return probeDevice(ctx, client.WithSerial(serial))
		})
		for _, r := range results {
			report, ok := reports[r.Serial]
			if !ok {
				report = &deviceReport{Serial: r.Serial, State: "unknown"}
				reports[r.Serial] = report
				order = append(order, r.Serial)
			}
			if r.Err != nil {
				report.Error = r.Err.Error()
				continue
			}
			report.Android = r.Value.android
			report.SDK = r.Value.sdk
			report.Tier = r.Value.tier
		}

		rows := make([]deviceReport, 0, len(order))
		for _, serial := range order {
			rows = append(rows, *reports[serial])
		}

		if devicesFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		if len(rows) == 0 {
			fmt.Println(i18n.T("devices.none"))
			return nil
		}
		printDevices(rows)
		return nil
	},
}

func probeDevice(ctx context.Context, client *adb.Client) (deviceProbe, error) {
	var p deviceProbe
	release, err := client.Property(ctx, "ro.build.version.release")
	if err != nil {
		return p, err
	}
	p.android = release
	tier, err := client.DetectTier(ctx)
	if err != nil {
		return p, err
	}
	p.tier = tier.String()
	p.sdk, err = client.SDKLevel(ctx)
	return p, err
}

func printDevices(rows []deviceReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tSTATE\tMODEL\tANDROID\tTIER\tTYPE")
	for _, r := range rows {
		kind := "device"
		if r.Emulator {
			kind = "emulator"
		}
		android := r.Android
		if r.SDK > 0 {
			android = fmt.Sprintf("%s (API %d)", r.Android, r.SDK)
		}
		tier := r.Tier
		if r.Error != "" {
			tier = "error: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Serial, r.State, r.Model, android, tier, kind)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "Output format: table, json")
	devicesCmd.Flags().IntVarP(&devicesWorkers, "workers", "w", 4, "Devices probed at the same time")
}
