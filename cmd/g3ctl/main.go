/*
g3ctl is a command-line tool for Glasses 3 devices.

Provides discovery, device information, recording control and live
streaming against a device on the local network.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	g3go "github.com/tobiipro/g3go"
	"github.com/tobiipro/g3go/discovery"
	"github.com/tobiipro/g3go/internal/config"
	"github.com/tobiipro/g3go/logging"
	"github.com/tobiipro/g3go/streams"
)

const appName = "g3ctl"

var (
	configPath = flag.String("config", "", "Path to configuration file")
	hostname   = flag.String("hostname", "", "Device hostname (overrides configuration)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
	duration   = flag.Duration("duration", 10*time.Second, "Duration for record/stream commands")
)

func main() {
	flag.Parse()

	logger := logging.NewLogger(appName)

	manager := config.NewManager(logger.WithComponent("config"))
	if *configPath != "" {
		if err := manager.Load(*configPath); err != nil {
			logger.WithError(err).Fatal("Failed to load configuration")
		}
	}
	cfg := manager.Get()
	if err := logger.Setup(&cfg.Logging); err != nil {
		logger.WithError(err).Fatal("Failed to set up logging")
	}
	if *verbose {
		logger.SetLevel(logging.DebugLevel)
	}
	if *hostname != "" {
		cfg.Device.Hostname = *hostname
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command := args[0]; command {
	case "discover":
		err = runDiscover(ctx, cfg, logger)
	case "info":
		err = withDevice(ctx, cfg, logger, runInfo)
	case "record":
		err = withDevice(ctx, cfg, logger, runRecord)
	case "recordings":
		err = withDevice(ctx, cfg, logger, runRecordings)
	case "stream":
		err = withDevice(ctx, cfg, logger, runStream)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command>

Commands:
  discover     Listen for devices on the network
  info         Print device information
  record       Make a recording of the given -duration
  recordings   List the recordings on the device
  stream       Stream live video/gaze for the given -duration

Flags:
`, appName)
	flag.PrintDefaults()
}

func connectOptions(cfg *config.Config, logger *logging.Logger) *g3go.ConnectOptions {
	return &g3go.ConnectOptions{
		UseIP:            cfg.Device.UseIP,
		DiscoveryTimeout: time.Duration(cfg.Discovery.TimeoutSeconds * float64(time.Second)),
		Logger:           logger,
	}
}

func withDevice(ctx context.Context, cfg *config.Config, logger *logging.Logger, run func(context.Context, *config.Config, *logging.Logger, *g3go.Device) error) error {
	opts := connectOptions(cfg, logger)

	var device *g3go.Device
	var err error
	switch {
	case cfg.Device.WSURL != "":
		device, err = g3go.ConnectWithURLs(ctx, cfg.Device.WSURL, cfg.Device.RTSPURL, cfg.Device.HTTPURL, opts)
	case cfg.Device.Hostname != "":
		device, err = g3go.ConnectWithHostname(ctx, cfg.Device.Hostname, false, opts)
	default:
		device, err = g3go.ConnectWithZeroconf(ctx, opts)
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := device.Close(); cerr != nil {
			logger.WithError(cerr).Debug("Device close failed")
		}
	}()
	return run(ctx, cfg, logger, device)
}

func runDiscover(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	listener, err := discovery.Listen(ctx, &discovery.Options{
		Timeout: time.Duration(cfg.Discovery.TimeoutSeconds * float64(time.Second)),
		Logger:  logger.WithComponent("discovery"),
	})
	if err != nil {
		return err
	}
	defer listener.Close()

	fmt.Println("Listening for Glasses 3 devices, ctrl-c to stop...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-listener.Events():
			if !ok {
				return nil
			}
			rtspURL, _ := event.Service.RTSPURL(false, discovery.Either)
			wsURL, _ := event.Service.WSURL(false, discovery.Either)
			fmt.Printf("%-8s %-20s ws=%s rtsp=%s\n", event.Kind, event.Service.Hostname, wsURL, rtspURL)
		}
	}
}

func runInfo(ctx context.Context, _ *config.Config, _ *logging.Logger, device *g3go.Device) error {
	system := device.System()
	version, err := system.GetVersion(ctx)
	if err != nil {
		return err
	}
	serial, err := system.GetRecordingUnitSerial(ctx)
	if err != nil {
		return err
	}
	headSerial, err := system.GetHeadUnitSerial(ctx)
	if err != nil {
		return err
	}
	level, err := system.Battery().GetLevel(ctx)
	if err != nil {
		return err
	}
	state, err := system.Battery().GetState(ctx)
	if err != nil {
		return err
	}
	frequency, err := device.Settings().GetGazeFrequency(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Recording unit:  %s\n", serial)
	fmt.Printf("Head unit:       %s\n", headSerial)
	fmt.Printf("Firmware:        %s\n", version)
	fmt.Printf("Battery:         %.0f%% (%s)\n", level*100, state)
	fmt.Printf("Gaze frequency:  %d Hz\n", frequency)
	return nil
}

func runRecord(ctx context.Context, _ *config.Config, logger *logging.Logger, device *g3go.Device) error {
	recorder := device.Recorder()

	stop, err := device.Recordings().KeepUpdated(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if serr := stop(context.Background()); serr != nil {
			logger.WithError(serr).Warn("Failed to stop recordings mirror")
		}
	}()

	started, err := recorder.Start(ctx)
	if err != nil {
		return err
	}
	if !started {
		return fmt.Errorf("the device refused to start a recording")
	}
	logger.Info("Recording started")

	select {
	case <-time.After(*duration):
	case <-ctx.Done():
	}

	stopped, err := recorder.Stop(ctx)
	if err != nil {
		return err
	}
	if !stopped {
		return fmt.Errorf("the device refused to stop the recording")
	}

	event := <-device.Recordings().Events()
	logger.WithFields(logging.Fields{
		"event": event.Kind.String(),
	}).Info("Recording stored")
	for _, uuid := range device.Recordings().UUIDs() {
		fmt.Println(uuid)
	}
	return nil
}

func runRecordings(ctx context.Context, _ *config.Config, logger *logging.Logger, device *g3go.Device) error {
	stop, err := device.Recordings().KeepUpdated(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if serr := stop(context.Background()); serr != nil {
			logger.WithError(serr).Warn("Failed to stop recordings mirror")
		}
	}()

	recordings := device.Recordings()
	fmt.Printf("%d recordings (newest first)\n", recordings.Len())
	for i := 0; i < recordings.Len(); i++ {
		rec := recordings.At(i)
		name, _ := rec.GetVisibleName(ctx)
		created, err := rec.GetCreated(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s\n", rec.UUID(), created.Format(time.RFC3339), name)
	}
	return nil
}

func runStream(ctx context.Context, cfg *config.Config, logger *logging.Logger, device *g3go.Device) error {
	session, err := device.StreamRTSP(ctx, streams.Options{
		SceneCamera: cfg.Streams.SceneCamera,
		EyeCameras:  cfg.Streams.EyeCameras,
		Gaze:        cfg.Streams.Gaze,
		Logger:      logger.WithComponent("streams"),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	streamCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	if gaze := session.Gaze(); gaze != nil {
		samples := gaze.Decode(streamCtx)
		go func() {
			for sample := range samples {
				logger.WithFields(logging.Fields{
					"ntp": formatNTP(sample.NTP),
				}).Debug("Gaze sample")
			}
		}()
	}
	if scene := session.SceneCamera(); scene != nil {
		nalUnits := scene.Demux(streamCtx)
		go func() {
			for range nalUnits {
			}
		}()
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	proc, _ := process.NewProcess(int32(os.Getpid()))
	for {
		select {
		case <-streamCtx.Done():
			return nil
		case <-ticker.C:
			logStreamStats(logger, session, proc)
		}
	}
}

// logStreamStats reports per-stream counters together with local process
// load, which is what usually explains a stalling consumer.
func logStreamStats(logger *logging.Logger, session *streams.Streams, proc *process.Process) {
	fields := logging.Fields{}
	for streamType, stats := range session.Stats() {
		fields[streamType.String()+"_rtp"] = stats.RTPReceived
		fields[streamType.String()+"_out"] = stats.DemuxedOut
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fields["cpu_percent"] = fmt.Sprintf("%.1f", percents[0])
	}
	if proc != nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			fields["rss_mb"] = mem.RSS / (1024 * 1024)
		}
	}
	logger.WithFields(fields).Info("Streaming")
}

func formatNTP(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339Nano)
}
