// Prints the effective g3ctl configuration, optionally writing the
// default configuration file first.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/tobiipro/g3go/internal/config"
)

var (
	configPath   = flag.String("config", "", "Path to configuration file")
	writeDefault = flag.String("write-default", "", "Write the default configuration to this path and exit")
)

func main() {
	flag.Parse()

	if *writeDefault != "" {
		if err := config.WriteDefault(*writeDefault); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *writeDefault)
		return
	}

	manager := config.NewManager(nil)
	if *configPath != "" {
		if err := manager.Load(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	cfg := manager.Get()

	fmt.Println("=== g3ctl configuration ===")
	fmt.Printf("Device:\n")
	fmt.Printf("  Hostname: %s\n", cfg.Device.Hostname)
	fmt.Printf("  WS URL: %s\n", cfg.Device.WSURL)
	fmt.Printf("  RTSP URL: %s\n", cfg.Device.RTSPURL)
	fmt.Printf("  HTTP URL: %s\n", cfg.Device.HTTPURL)
	fmt.Printf("  Use IP: %t\n", cfg.Device.UseIP)
	fmt.Printf("\nDiscovery:\n")
	fmt.Printf("  Timeout: %.1f seconds\n", cfg.Discovery.TimeoutSeconds)
	fmt.Printf("\nStreams:\n")
	fmt.Printf("  Scene Camera: %t\n", cfg.Streams.SceneCamera)
	fmt.Printf("  Eye Cameras: %t\n", cfg.Streams.EyeCameras)
	fmt.Printf("  Gaze: %t\n", cfg.Streams.Gaze)
	fmt.Printf("  Subscriber Queue Size: %d\n", cfg.Streams.SubscriberQueueSize)
	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Printf("  Console Enabled: %t\n", cfg.Logging.ConsoleEnabled)
	fmt.Printf("  File Enabled: %t\n", cfg.Logging.FileEnabled)
	if cfg.Logging.FileEnabled {
		fmt.Printf("  File Path: %s\n", cfg.Logging.FilePath)
	}
}
