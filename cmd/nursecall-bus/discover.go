package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/mqttclient"
	"github.com/sua-org/nursecall-bus/internal/onvif"
	"github.com/sua-org/nursecall-bus/internal/supervisor"
)

var (
	discHost     string
	discPort     int
	discUser     string
	discPass     string
	discTimeout  time.Duration
	discRegister string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the RTSP stream URLs of an ONVIF camera",
	Long: `Queries the camera over ONVIF (GetProfiles + GetStreamUri). With
--register ROOM the first stream is published on {base}/cameras/ROOM/info
so a running collector starts streaming it.`,
	Example: `  nursecall-bus discover --host 10.0.0.9 --username admin --password secret
  nursecall-bus discover --host 10.0.0.9 --password secret --register "ICU 3"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if discHost == "" {
			return fmt.Errorf("--host is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), discTimeout)
		defer cancel()

		cli := onvif.New(onvif.Config{
			Host:     discHost,
			Port:     discPort,
			Username: discUser,
			Password: discPass,
			Timeout:  discTimeout,
		})
		info, err := cli.DeviceInformation(ctx)
		if err != nil {
			// nem toda câmera libera GetDeviceInformation; segue para os perfis
			fmt.Fprintf(os.Stderr, "device information unavailable: %v\n", err)
		}
		streams, err := cli.Discover(ctx)
		if err != nil {
			return fmt.Errorf("discover %s: %w", discHost, err)
		}

		if discRegister != "" && len(streams) > 0 {
			if err := registerCamera(discRegister, streams[0].RTSPURL); err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(struct {
				Device  onvif.DeviceInfo `json:"device"`
				Streams []onvif.Stream   `json:"streams"`
			}{info, streams})
		}

		if info.Manufacturer != "" || info.Model != "" {
			fmt.Printf("Device: %s %s (firmware %s)\n\n", info.Manufacturer, info.Model, info.FirmwareVersion)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PROFILE\tTOKEN\tRESOLUTION\tRTSP URL")
		fmt.Fprintln(w, "-------\t-----\t----------\t--------")
		for _, s := range streams {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ProfileName, s.ProfileToken, s.Resolution, s.RTSPURL)
		}
		return w.Flush()
	},
}

// registerCamera publica o /info retido do quarto no broker configurado.
func registerCamera(room, source string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cli, err := mqttclient.New(cfg.MQTT, serviceName+"-discover", logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	payload, err := json.Marshal(core.CameraInfo{Room: room, Source: source, Enabled: true})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/cameras/%s/info", strings.TrimSuffix(cfg.MQTT.BaseTopic, "/"), supervisor.TopicSegment(room))
	if err := cli.Publish(topic, 1, true, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	fmt.Printf("Registered %q on %s\n", room, topic)
	return nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVar(&discHost, "host", "", "camera IP or hostname")
	discoverCmd.Flags().IntVar(&discPort, "port", 80, "ONVIF HTTP port")
	discoverCmd.Flags().StringVar(&discUser, "username", "admin", "camera username")
	discoverCmd.Flags().StringVar(&discPass, "password", "", "camera password")
	discoverCmd.Flags().DurationVar(&discTimeout, "timeout", 15*time.Second, "overall timeout")
	discoverCmd.Flags().StringVar(&discRegister, "register", "", "room name to register the first stream for")
}
