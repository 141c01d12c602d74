package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/mqttclient"
	"github.com/sua-org/nursecall-bus/internal/supervisor"
)

var (
	tailTopic  string
	tailStatus bool
	tailRaw    bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the events published on MQTT (debug)",
	Long: `Subscribes to {base}/events and prints every event the collector
publishes. --status also follows the retained camera and collector status
topics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cli, err := mqttclient.New(cfg.MQTT, serviceName+"-tail", logger)
		if err != nil {
			return err
		}
		defer cli.Close()

		base := strings.TrimSuffix(cfg.MQTT.BaseTopic, "/")
		topic := tailTopic
		if topic == "" {
			topic = supervisor.EventsTopic(base)
		}
		if err := cli.Subscribe(topic, 1, printEvent); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		logger.Info("subscribed", zap.String("topic", topic))

		if tailStatus {
			for _, t := range []string{base + "/cameras/+/status", base + "/collector/status"} {
				if err := cli.Subscribe(t, 0, printRaw); err != nil {
					return fmt.Errorf("subscribe %s: %w", t, err)
				}
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func printEvent(topic string, payload []byte) {
	if tailRaw {
		printRaw(topic, payload)
		return
	}
	var ev core.EventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		fmt.Printf("[%s] not an event payload (%v): %s\n", topic, err, string(payload))
		return
	}

	session := "-"
	if ev.CallSessionID != nil {
		session = fmt.Sprint(*ev.CallSessionID)
	}
	line := fmt.Sprintf("[EVENT] %s id=%d type=%s title=%q room=%q bed=%q session=%s",
		ev.SystemTimestamp, ev.ID, ev.EventType, ev.Title, ev.RoomName, ev.BedName, session)
	if ev.CameraURL != nil {
		line += fmt.Sprintf(" camera=%s live=%t", *ev.CameraURL, ev.CameraLive)
	}
	if ev.SnapshotURL != "" {
		line += " snapshot=" + ev.SnapshotURL
	}
	fmt.Println(line)
}

func printRaw(topic string, payload []byte) {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		fmt.Printf("[%s] %s\n", topic, string(payload))
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("[%s]\n%s\n", topic, pretty)
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringVar(&tailTopic, "topic", "", "topic to follow (default {base}/events)")
	tailCmd.Flags().BoolVar(&tailStatus, "status", false, "also print camera and collector status")
	tailCmd.Flags().BoolVar(&tailRaw, "raw", false, "print the JSON payload instead of a summary line")
}
