package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obd-emissions-monitor/internal/adapter"
	"obd-emissions-monitor/internal/api"
	"obd-emissions-monitor/internal/config"
	"obd-emissions-monitor/internal/db"
	"obd-emissions-monitor/internal/drivelog"
	"obd-emissions-monitor/internal/logger"
	"obd-emissions-monitor/internal/models"
	"obd-emissions-monitor/internal/obd"
	"obd-emissions-monitor/internal/trip"
)

var (
	cfg      config.Config
	dbPath   string
	debug    bool
	database *db.Database
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "emissions-monitor",
		Short: "OBD-II Emissions Monitor - CO2 estimation from live vehicle telemetry",
		Long: `Reads OBD-II parameters from a vehicle over a serial or WiFi adapter,
derives CO2 mass flow and trip totals from mass air flow or fuel rate,
and stores finished trips with their routes in SQLite.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(debug)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "Path to SQLite database")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", cfg.Debug, "Enable debug logging")

	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(tripsCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB opens the trip database at the configured path.
func initDB() error {
	var err error
	database, err = db.New(dbPath)
	return err
}

// monitorCmd runs a live trip from an adapter or the simulator.
func monitorCmd() *cobra.Command {
	var (
		simulate     bool
		seed         int64
		fuelRateOnly bool
		port         string
		baud         int
		addr         string
		interval     time.Duration
		listen       string
		record       string
		vehicle      string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor a live trip and save it on exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			source, desc, err := openSource(simulate, seed, fuelRateOnly, port, baud, addr)
			if err != nil {
				return err
			}

			log := logger.Named("monitor")
			session := trip.NewSession(source, vehicle, interval, log)
			session.OnTick(printTick)

			if record != "" {
				rec, err := drivelog.NewRecorder(record)
				if err != nil {
					return err
				}
				defer rec.Close()
				session.OnTick(func(t models.Tick) {
					if err := rec.Append(t.Reading); err != nil {
						log.Warn("record tick", zap.Error(err))
					}
				})
			}

			var server *api.Server
			if listen != "" {
				server = api.NewServer(database, logger.Named("api"))
				server.Hub().Attach()
				defer server.Hub().Detach()
				session.OnTick(server.Hub().Broadcast)
				go func() {
					log.Info("serving API", zap.String("listen", listen))
					if err := http.ListenAndServe(listen, server.Router()); err != nil {
						log.Error("api server", zap.Error(err))
					}
				}()
			}

			fmt.Printf("Monitoring %s (source: %s). Ctrl-C to stop and save.\n\n", vehicle, desc)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := session.Run(ctx); err != nil {
				// The trip still gets saved from accumulated state.
				log.Warn("session ended with error", zap.Error(err))
			}

			t, points := session.Finish()
			if err := database.SaveTrip(&t, points); err != nil {
				return fmt.Errorf("save trip: %w", err)
			}

			fmt.Println()
			printTrip(&t, len(points))
			return nil
		},
	}

	cmd.Flags().BoolVar(&simulate, "simulate", false, "Use the built-in drive simulator")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Simulator random seed")
	cmd.Flags().BoolVar(&fuelRateOnly, "fuel-rate-only", false, "Simulate a vehicle reporting fuel rate instead of MAF")
	cmd.Flags().StringVar(&port, "port", cfg.SerialPort, "Serial port of the OBD adapter")
	cmd.Flags().IntVar(&baud, "baud", cfg.Baud, "Serial baud rate")
	cmd.Flags().StringVar(&addr, "addr", cfg.TCPAddr, "TCP address of a WiFi OBD adapter")
	cmd.Flags().DurationVar(&interval, "interval", cfg.PollInterval, "Poll interval")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the API and live stream on this address while monitoring")
	cmd.Flags().StringVar(&record, "record", "", "Record raw readings to a drive log file")
	cmd.Flags().StringVar(&vehicle, "vehicle", cfg.Vehicle, "Vehicle identifier for the stored trip")
	return cmd
}

// openSource picks the telemetry source from the monitor flags.
func openSource(simulate bool, seed int64, fuelRateOnly bool, port string, baud int, addr string) (trip.Source, string, error) {
	switch {
	case simulate:
		sim := adapter.NewSimulator(seed)
		sim.FuelRateOnly = fuelRateOnly
		return sim, fmt.Sprintf("simulator, seed %d", seed), nil

	case port != "":
		t, err := adapter.DialSerial(port, baud)
		if err != nil {
			return nil, "", err
		}
		src, err := adapter.NewELMSource(t, logger.Named("elm327"))
		if err != nil {
			t.Close()
			return nil, "", err
		}
		return src, fmt.Sprintf("serial %s @ %d baud", port, baud), nil

	case addr != "":
		t, err := adapter.DialTCP(addr)
		if err != nil {
			return nil, "", err
		}
		src, err := adapter.NewELMSource(t, logger.Named("elm327"))
		if err != nil {
			t.Close()
			return nil, "", err
		}
		return src, fmt.Sprintf("tcp %s", addr), nil

	default:
		return nil, "", fmt.Errorf("one of --simulate, --port or --addr is required")
	}
}

// replayCmd recomputes a recorded drive log through a fresh estimator.
func replayCmd() *cobra.Command {
	var save bool
	var vehicle string

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay a drive log and recompute its trip totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replayer, err := drivelog.NewReplayer(args[0])
			if err != nil {
				return err
			}

			// Interval zero: ticks run as fast as the log delivers, with
			// dt taken from the recorded timestamps.
			session := trip.NewSession(replayer, vehicle, 0, logger.Named("replay"))
			if err := session.Run(cmd.Context()); err != nil {
				return fmt.Errorf("replay: %w", err)
			}

			t, points := session.Finish()
			printTrip(&t, len(points))

			if save {
				if err := initDB(); err != nil {
					return fmt.Errorf("database error: %w", err)
				}
				defer database.Close()

				if err := database.SaveTrip(&t, points); err != nil {
					return fmt.Errorf("save trip: %w", err)
				}
				fmt.Printf("Saved as trip %d\n", t.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist the replayed trip")
	cmd.Flags().StringVar(&vehicle, "vehicle", cfg.Vehicle, "Vehicle identifier for the stored trip")
	return cmd
}

// serverCmd serves the API over stored trips, without a live session.
func serverCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			server := api.NewServer(database, logger.Named("api"))

			fmt.Printf("Emissions Monitor API on %s (database: %s)\n\n", listen, dbPath)
			fmt.Println("Available endpoints:")
			fmt.Println("  GET    /health")
			fmt.Println("  GET    /api/v1/trips")
			fmt.Println("  GET    /api/v1/trips/{id}")
			fmt.Println("  DELETE /api/v1/trips/{id}")
			fmt.Println("  GET    /api/v1/trips/{id}/route")
			fmt.Println("  GET    /api/v1/stats")
			fmt.Println("  POST   /api/v1/decode")
			fmt.Println("  GET    /api/v1/live (websocket)")
			fmt.Println()

			return http.ListenAndServe(listen, server.Router())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", cfg.Listen, "Listen address")
	return cmd
}

// decodeCmd decodes one raw adapter response from the command line.
func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [pid] [response]",
		Short: "Decode a raw OBD-II response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := obd.ParsePID(args[0])
			if err != nil {
				return err
			}
			value := obd.Decode(pid, args[1])
			fmt.Printf("%s (%s): %g %s\n", pid.Name(), pid, value, pid.Unit())
			return nil
		},
	}
}

// tripsCmd lists and shows stored trips.
func tripsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trips",
		Short: "Stored trip commands",
	}

	var vehicle string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored trips",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			trips, err := database.ListTrips(models.TripQuery{VehicleID: vehicle, Limit: limit})
			if err != nil {
				return fmt.Errorf("list trips: %w", err)
			}

			if len(trips) == 0 {
				fmt.Println("No trips stored. Use 'emissions-monitor monitor' to record one.")
				return nil
			}

			fmt.Printf("%-5s %-12s %-20s %9s %10s %12s\n",
				"ID", "Vehicle", "Started", "km", "CO2 g", "g/km")
			for _, t := range trips {
				avg := "-"
				if t.AvgCO2GPerKm != nil {
					avg = fmt.Sprintf("%.1f", *t.AvgCO2GPerKm)
				}
				fmt.Printf("%-5d %-12s %-20s %9.2f %10.1f %12s\n",
					t.ID, t.VehicleID, t.StartedAt.Format("2006-01-02 15:04:05"),
					t.DistanceKm, t.TotalCO2G, avg)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&vehicle, "vehicle", "", "Filter by vehicle")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum trips to list")

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one trip in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid trip id %q", args[0])
			}

			t, err := database.GetTrip(id)
			if err != nil {
				return fmt.Errorf("trip %d: %w", id, err)
			}
			points, err := database.GetRoute(id)
			if err != nil {
				return fmt.Errorf("route for trip %d: %w", id, err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{"trip": t, "route": points})
			}

			printTrip(t, len(points))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

// statsCmd prints fleet-wide aggregates.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fleet statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			stats, err := database.GetFleetStats()
			if err != nil {
				return fmt.Errorf("fleet stats: %w", err)
			}

			fmt.Println("Fleet statistics")
			fmt.Println("================")
			fmt.Printf("  Trips:           %d\n", stats.TripCount)
			fmt.Printf("  Total distance:  %.2f km\n", stats.TotalDistanceKm)
			fmt.Printf("  Total CO2:       %.2f kg\n", stats.TotalCO2G/1000)
			if stats.AvgCO2GPerKm != nil {
				fmt.Printf("  Avg intensity:   %.1f g/km\n", *stats.AvgCO2GPerKm)
			}
			fmt.Printf("  Max speed:       %.1f km/h\n", stats.MaxSpeedKmh)
			fmt.Printf("  Database:        %s\n", dbPath)
			return nil
		},
	}
}

// printTick writes one live line per tick.
func printTick(t models.Tick) {
	if t.Result.Stale {
		fmt.Printf("[%s] %5.1f km/h | stale tick, totals %7.1f g / %6.2f km\n",
			t.Reading.Timestamp.Format("15:04:05"),
			t.Reading.SpeedKmh, t.Result.TotalCO2G, t.Result.DistanceKm)
		return
	}

	intensity := "    -"
	if t.Result.CO2GPerKm != nil {
		intensity = fmt.Sprintf("%5.0f", *t.Result.CO2GPerKm)
	}
	fmt.Printf("[%s] %5.1f km/h | %4.0f rpm | %5.2f g/s CO2 | %s g/km | trip %7.1f g / %6.2f km\n",
		t.Reading.Timestamp.Format("15:04:05"),
		t.Reading.SpeedKmh, t.Reading.EngineRPM,
		t.Result.CO2Gps, intensity,
		t.Result.TotalCO2G, t.Result.DistanceKm)
}

// printTrip writes the end-of-trip summary.
func printTrip(t *models.Trip, routePoints int) {
	fmt.Printf("Trip summary (%s)\n", t.VehicleID)
	fmt.Println("====================")
	fmt.Printf("  Started:       %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Ended:         %s\n", t.EndedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Distance:      %.2f km\n", t.DistanceKm)
	fmt.Printf("  Total CO2:     %.1f g\n", t.TotalCO2G)
	if t.AvgCO2GPerKm != nil {
		fmt.Printf("  Avg intensity: %.1f g/km\n", *t.AvgCO2GPerKm)
	}
	fmt.Printf("  Max speed:     %.1f km/h\n", t.MaxSpeedKmh)
	fmt.Printf("  Ticks:         %d (route points: %d)\n", t.TickCount, routePoints)
}
