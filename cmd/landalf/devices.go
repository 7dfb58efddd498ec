package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/devices"
	"github.com/fgeck/landalf/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage stored devices",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored devices",
	Args:  cobra.NoArgs,
	RunE:  listDevices,
}

var addFlags models.DeviceInput

var devicesAddCmd = &cobra.Command{
	Use:   "add <name> <mac>",
	Short: "Add a device",
	Args:  cobra.ExactArgs(2),
	RunE:  addDevice,
}

func init() {
	devicesAddCmd.Flags().StringVar(&addFlags.IPAddress, "ip", "", "device IP address (used for SSH shutdown)")
	devicesAddCmd.Flags().StringVar(&addFlags.BroadcastAddress, "broadcast", "", "IPv4 broadcast address (default: auto-detect)")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAddCmd)
}

func openStore() (*store.SQLiteStore, error) {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Database.Path, log.Logger)
}

func listDevices(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return err
	}
	defer st.Close()

	list, err := st.List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMAC\tIP\tBROADCAST\tONLINE")
	for _, d := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n",
			d.ID, d.Name, models.FormatMAC(d.MACAddress), orDash(d.IPAddress), orAuto(d.BroadcastAddress), d.IsOnline)
	}
	return w.Flush()
}

func addDevice(cmd *cobra.Command, args []string) error {
	in := addFlags
	in.Name = args[0]
	in.MACAddress = args[1]

	d, err := devices.ParseInput(in)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		log.Error().Err(err).Msg("failed to open database")
		return err
	}
	defer st.Close()

	created, err := st.Create(cmd.Context(), d)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (id %d)\n", created.Name, created.ID)
	return nil
}

func orDash(v fmt.Stringer) string {
	if s := v.String(); s != "<nil>" {
		return s
	}
	return "-"
}

func orAuto(v fmt.Stringer) string {
	if s := v.String(); s != "<nil>" {
		return s
	}
	return "auto"
}
