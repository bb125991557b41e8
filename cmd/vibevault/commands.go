package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	syncpkg "github.com/vibevault/vibevault/pkg/sync"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the vault user on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		registered, err := core.CheckRegistration()
		if err != nil {
			return err
		}
		if registered {
			return fmt.Errorf("a user is already registered on this device")
		}

		username, err := promptLine("Username: ")
		if err != nil {
			return err
		}
		password, err := promptLine("Master password: ")
		if err != nil {
			return err
		}
		confirm, err := promptLine("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		if err := core.RegisterUser(username, password); err != nil {
			return err
		}
		fmt.Println("Vault initialized.")
		return nil
	},
}

var totpCmd = &cobra.Command{
	Use:   "totp <secret>",
	Short: "Generate the current TOTP code for a Base32 secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := unlock(core)
		if err != nil {
			return err
		}
		defer core.LockVault(token)

		totpToken, err := core.GetTOTPToken(token, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  (valid for %ds)\n", totpToken.Code, totpToken.SecondsRemaining)
		return nil
	},
}

var advertiseCmd = &cobra.Command{
	Use:   "advertise",
	Short: "Advertise as sync peripheral and wait for a mobile peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := unlock(core)
		if err != nil {
			return err
		}
		defer core.LockVault(token)

		pull, _ := cmd.Flags().GetBool("pull")
		if pull {
			err = core.StartPull(token)
		} else {
			err = core.StartPush(token)
		}
		if err != nil {
			return err
		}

		return watchSync(core, token)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Scan for a peer and sync as central",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := unlock(core)
		if err != nil {
			return err
		}
		defer core.LockVault(token)

		fmt.Println("Scanning for devices...")
		devices, err := core.ScanForDevices(context.Background(), token)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return fmt.Errorf("no devices found")
		}

		for i, d := range devices {
			fmt.Printf("  [%d] %s (%s)\n", i, d.Name, d.ID)
		}
		choice, err := promptLine("Device number: ")
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 0 || idx >= len(devices) {
			return fmt.Errorf("invalid selection %q", choice)
		}

		if err := core.ConnectToDevice(token, devices[idx]); err != nil {
			return err
		}

		return watchSync(core, token)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List paired devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := unlock(core)
		if err != nil {
			return err
		}
		defer core.LockVault(token)

		devices, err := core.GetPairedDevices(token)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No paired devices.")
			return nil
		}
		for _, d := range devices {
			last := "never"
			if d.LastSyncAt != nil {
				last = d.LastSyncAt.Format(time.RFC3339)
			}
			fmt.Printf("%-24s %-20s last sync: %s\n", d.DeviceName, d.DeviceID, last)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		core, st, err := openCore()
		if err != nil {
			return err
		}
		defer st.Close()

		token, err := unlock(core)
		if err != nil {
			return err
		}
		defer core.LockVault(token)

		history, err := core.GetSyncHistory(token)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No sync history.")
			return nil
		}
		for _, h := range history {
			fmt.Printf("%s  %-6s %-8s sent=%d received=%d %s\n",
				h.StartedAt.Format(time.RFC3339), h.Direction, h.Status,
				h.EntriesSent, h.EntriesReceived, h.ErrorMessage)
		}
		return nil
	},
}

func init() {
	advertiseCmd.Flags().Bool("pull", false, "Receive the peer's bundle instead of sending ours")
}

// watchSync polls the state machine and renders transitions until the
// session reaches a terminal state, prompting for the pairing code when
// the peer asks for one.
func watchSync(core interface {
	SyncState(string) (syncpkg.Snapshot, error)
	SubmitPairingCode(string, string) error
}, token string) error {
	var last syncpkg.State
	for {
		snap, err := core.SyncState(token)
		if err != nil {
			return err
		}

		if snap.State != last {
			last = snap.State
			switch snap.State {
			case syncpkg.StateDisplayCode:
				fmt.Printf("Pairing code: %s\n", snap.PairingCode)
			case syncpkg.StateAwaitingCode:
				code, err := promptLine("Enter the code shown on the other device: ")
				if err != nil {
					return err
				}
				if err := core.SubmitPairingCode(token, code); err != nil {
					return err
				}
			case syncpkg.StateTransferring:
				fmt.Println("Transferring...")
			case syncpkg.StateComplete:
				fmt.Printf("Sync complete: sent %d, received %d\n", snap.EntriesSent, snap.EntriesReceived)
				return nil
			case syncpkg.StateError:
				return fmt.Errorf("sync failed (%s): %s", snap.ErrorKind, snap.Error)
			}
		}

		time.Sleep(200 * time.Millisecond)
	}
}
