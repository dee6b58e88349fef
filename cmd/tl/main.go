package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tideline/internal/app"
	"tideline/internal/config"
	"tideline/internal/db"
	"tideline/internal/domain"
	"tideline/internal/engine"
	"tideline/internal/migrate"
	"tideline/internal/repo"
	"tideline/internal/server"
	"tideline/internal/syncer"
	tidelinesdk "tideline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Tideline CLI",
	Long: `Tideline schedules bookable resources (boats, helicopters, buggies, crew).
Core concepts:
- Workspace: your .tideline directory holding the database; config comes from tideline.yml.
- Resources: the things you book, each with a capacity and a status (available, booked, maintenance, offline).
- Templates: recurring weekly availability with time slots, blackout dates, and seasonal overrides.
- Bookings: reservations on a resource for a time window; overlapping active bookings are refused.
- Eligibility rules: per-resource gates (weather limits, season, minimum age, required crew certs); block-severity rules stop confirmation, warnings just flag it.
- Notifications: emitted with each booking change, ordered per booking.
- Event log: the ledger of all changes, also the sync delta feed ('tl log tail', 'tl sync').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TIDELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("operator", "", "operator id (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("operator", rootCmd.PersistentFlags().Lookup("operator"))
}

func registerCommands() {
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(bookingCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(crewCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func resourceCmd() *cobra.Command {
	res := &cobra.Command{Use: "resource", Short: "Manage resources"}
	res.AddCommand(resourceCreateCmd())
	res.AddCommand(resourceListCmd())
	res.AddCommand(resourceShowCmd())
	res.AddCommand(resourceStatusCmd())
	res.AddCommand(resourceCrewCmd())
	return res
}

func resourceCreateCmd() *cobra.Command {
	var opts engine.ResourceCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.CreateResource(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "resource id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "resource name")
	cmd.Flags().StringVar(&opts.Type, "type", "boat", "boat|helicopter|buggy|staff|other")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 1, "passenger capacity")
	cmd.Flags().StringVar(&opts.Location, "location", "", "home location")
	cmd.Flags().StringSliceVar(&opts.Crew, "crew", nil, "standing crew ids")
	return cmd
}

func resourceListCmd() *cobra.Command {
	var resType, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListResources(ctx, repo.ResourceFilters{Type: resType, Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Capacity", "Status", "Location"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Name, r.Type, r.Capacity, r.Status, r.Location})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resType, "type", "", "type filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func resourceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.GetResource(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func resourceStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Change resource status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.SetResourceStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "available|maintenance|offline")
	return cmd
}

func resourceCrewCmd() *cobra.Command {
	var crew []string
	var startAt, endAt string
	cmd := &cobra.Command{
		Use:   "crew <id>",
		Short: "Assign standing crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				res, err := e.AssignCrew(ctx, args[0], crew, startAt, endAt, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringSliceVar(&crew, "members", nil, "crew member ids")
	cmd.Flags().StringVar(&startAt, "start", "", "conflict-check window start (RFC3339)")
	cmd.Flags().StringVar(&endAt, "end", "", "conflict-check window end (RFC3339)")
	return cmd
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage schedule templates"}
	tpl.AddCommand(templateCreateCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(slotStatusCmd())
	return tpl
}

func templateCreateCmd() *cobra.Command {
	var resourceID string
	var weekdays int
	var slots, overrides, blackouts []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule template",
		Long:  "Slots are start:duration:capacity[:price-mult], e.g. 09:00:120:8 or 14:30:90:6:1.5. Overrides are start..end:cap-mult:price-mult with MM-DD bounds.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TemplateCreateOptions{
				ResourceID:    resourceID,
				Weekdays:      weekdays,
				BlackoutDates: blackouts,
				ActorID:       viper.GetString("actor-id"),
			}
			for _, raw := range slots {
				spec, err := parseSlotSpec(raw)
				if err != nil {
					return err
				}
				opts.Slots = append(opts.Slots, spec)
			}
			for _, raw := range overrides {
				spec, err := parseOverrideSpec(raw)
				if err != nil {
					return err
				}
				opts.Overrides = append(opts.Overrides, spec)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTemplate(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource id")
	cmd.Flags().IntVar(&weekdays, "weekdays", 0, "bitmask, Monday=1 .. Sunday=64")
	cmd.Flags().StringSliceVar(&slots, "slot", nil, "slot spec HH:MM:duration:capacity[:price-mult]")
	cmd.Flags().StringSliceVar(&overrides, "override", nil, "seasonal override MM-DD..MM-DD:cap-mult:price-mult")
	cmd.Flags().StringSliceVar(&blackouts, "blackout", nil, "blackout day YYYY-MM-DD")
	return cmd
}

// parseSlotSpec parses HH:MM:duration:capacity[:price-mult].
func parseSlotSpec(raw string) (engine.SlotSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 4 || len(parts) > 5 {
		return engine.SlotSpec{}, fmt.Errorf("bad slot spec %q, want HH:MM:duration:capacity[:price-mult]", raw)
	}
	spec := engine.SlotSpec{StartTime: parts[0] + ":" + parts[1]}
	if _, err := fmt.Sscanf(parts[2], "%d", &spec.DurationMin); err != nil {
		return engine.SlotSpec{}, fmt.Errorf("bad duration in %q", raw)
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &spec.Capacity); err != nil {
		return engine.SlotSpec{}, fmt.Errorf("bad capacity in %q", raw)
	}
	if len(parts) == 5 {
		if _, err := fmt.Sscanf(parts[4], "%f", &spec.PriceMultiplier); err != nil {
			return engine.SlotSpec{}, fmt.Errorf("bad price multiplier in %q", raw)
		}
	}
	return spec, nil
}

// parseOverrideSpec parses MM-DD..MM-DD:cap-mult:price-mult.
func parseOverrideSpec(raw string) (engine.OverrideSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return engine.OverrideSpec{}, fmt.Errorf("bad override spec %q, want MM-DD..MM-DD:cap-mult:price-mult", raw)
	}
	window := strings.Split(parts[0], "..")
	if len(window) != 2 {
		return engine.OverrideSpec{}, fmt.Errorf("bad override window in %q", raw)
	}
	spec := engine.OverrideSpec{Starts: window[0], Ends: window[1]}
	if _, err := fmt.Sscanf(parts[1], "%f", &spec.CapacityMultiplier); err != nil {
		return engine.OverrideSpec{}, fmt.Errorf("bad capacity multiplier in %q", raw)
	}
	if _, err := fmt.Sscanf(parts[2], "%f", &spec.PriceMultiplier); err != nil {
		return engine.OverrideSpec{}, fmt.Errorf("bad price multiplier in %q", raw)
	}
	return spec, nil
}

func templateListCmd() *cobra.Command {
	var resourceID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates for a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.TemplatesForResource(ctx, resourceID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource id")
	return cmd
}

func slotStatusCmd() *cobra.Command {
	var status, reason string
	cmd := &cobra.Command{
		Use:   "slot-status <slot-id>",
		Short: "Block, reopen or cancel a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				slot, err := e.SetSlotStatus(ctx, args[0], status, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(slot)
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "active|blocked|cancelled")
	cmd.Flags().StringVar(&reason, "reason", "", "recorded in the event log")
	return cmd
}

func availabilityCmd() *cobra.Command {
	var resourceID, day string
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Bookable slots for a resource on a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ResolveAvailability(ctx, resourceID, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Slot", "Start", "End", "Remaining", "Capacity", "Price x"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.SlotID, s.StartAt, s.EndAt, s.Remaining, s.Capacity, s.PriceMultiplier})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource id")
	cmd.Flags().StringVar(&day, "day", "", "day YYYY-MM-DD")
	return cmd
}

func bookingCmd() *cobra.Command {
	bk := &cobra.Command{Use: "booking", Short: "Manage bookings"}
	bk.AddCommand(bookingCreateCmd())
	bk.AddCommand(bookingListCmd())
	bk.AddCommand(bookingShowCmd())
	bk.AddCommand(bookingStatusCmd())
	bk.AddCommand(bookingNoteCmd())
	bk.AddCommand(bookingConflictsCmd())
	return bk
}

func bookingCreateCmd() *cobra.Command {
	var opts engine.BookingCreateOptions
	var wind, precip, visibility float64
	var condition string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("wind") || cmd.Flags().Changed("precipitation") ||
				cmd.Flags().Changed("visibility") || cmd.Flags().Changed("condition") {
				w := &domain.WeatherSnapshot{Condition: condition, CapturedAt: time.Now().UTC().Format(time.RFC3339)}
				if cmd.Flags().Changed("wind") {
					w.WindKmh = &wind
				}
				if cmd.Flags().Changed("precipitation") {
					w.PrecipitationMm = &precip
				}
				if cmd.Flags().Changed("visibility") {
					w.VisibilityKm = &visibility
				}
				opts.Weather = w
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.CreateBooking(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "booking id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "booking title")
	cmd.Flags().StringVar(&opts.ResourceID, "resource", "", "resource id")
	cmd.Flags().StringVar(&opts.StartAt, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&opts.EndAt, "end", "", "window end (RFC3339)")
	cmd.Flags().StringVar(&opts.SlotID, "slot", "", "slot id")
	cmd.Flags().IntVar(&opts.Guests, "guests", 1, "guest count")
	cmd.Flags().IntSliceVar(&opts.GuestAges, "ages", nil, "guest ages")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.ClientContact, "contact", "", "client contact")
	cmd.Flags().StringVar(&opts.PartnerRef, "partner-ref", "", "partner reference")
	cmd.Flags().StringSliceVar(&opts.Crew, "crew", nil, "crew member ids")
	cmd.Flags().Float64Var(&opts.Price, "price", 0, "price override")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringSliceVar(&opts.Recipients, "notify", nil, "notification recipients")
	cmd.Flags().Float64Var(&wind, "wind", 0, "wind km/h at booking time")
	cmd.Flags().Float64Var(&precip, "precipitation", 0, "precipitation mm")
	cmd.Flags().Float64Var(&visibility, "visibility", 0, "visibility km")
	cmd.Flags().StringVar(&condition, "condition", "", "weather condition")
	return cmd
}

func bookingListCmd() *cobra.Command {
	var resourceID, status, day string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListBookings(ctx, repo.BookingFilters{
					ResourceID: resourceID,
					Status:     status,
					Day:        day,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Resource", "Day", "Start", "End", "Status", "Eligibility"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Title, b.ResourceID, b.Day, b.StartAt, b.EndAt, b.Status, b.Eligibility})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&day, "day", "", "day filter YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func bookingShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.GetBooking(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func bookingStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Confirm, complete or cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.UpdateBookingStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "confirmed|completed|cancelled")
	return cmd
}

func bookingNoteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "note <id>",
		Short: "Append a note to a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				b, err := e.AppendBookingNote(ctx, args[0], note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&note, "text", "", "note text")
	return cmd
}

func bookingConflictsCmd() *cobra.Command {
	var resourceID, startAt, endAt string
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Active bookings overlapping a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.CheckConflicts(ctx, resourceID, startAt, endAt)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource id")
	cmd.Flags().StringVar(&startAt, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&endAt, "end", "", "window end (RFC3339)")
	return cmd
}

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage eligibility rules"}
	rule.AddCommand(ruleCreateCmd())
	rule.AddCommand(ruleListCmd())
	rule.AddCommand(ruleToggleCmd())
	return rule
}

func ruleCreateCmd() *cobra.Command {
	var opts engine.RuleCreateOptions
	var maxWind, maxPrecip, minVis float64
	var minAge int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an eligibility rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("max-wind") {
				opts.MaxWindKmh = &maxWind
			}
			if cmd.Flags().Changed("max-precipitation") {
				opts.MaxPrecipitationMm = &maxPrecip
			}
			if cmd.Flags().Changed("min-visibility") {
				opts.MinVisibilityKm = &minVis
			}
			if cmd.Flags().Changed("min-age") {
				opts.MinAge = &minAge
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rule, err := e.CreateRule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rule)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "rule id")
	cmd.Flags().StringVar(&opts.ResourceID, "resource", "", "resource id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "rule name")
	cmd.Flags().StringVar(&opts.Severity, "severity", "block", "warning|block")
	cmd.Flags().Float64Var(&maxWind, "max-wind", 0, "max wind km/h")
	cmd.Flags().Float64Var(&maxPrecip, "max-precipitation", 0, "max precipitation mm")
	cmd.Flags().Float64Var(&minVis, "min-visibility", 0, "min visibility km")
	cmd.Flags().StringSliceVar(&opts.AllowedConditions, "conditions", nil, "allowed weather conditions")
	cmd.Flags().StringVar(&opts.SeasonStart, "season-start", "", "season start MM-DD")
	cmd.Flags().StringVar(&opts.SeasonEnd, "season-end", "", "season end MM-DD")
	cmd.Flags().IntVar(&minAge, "min-age", 0, "minimum guest age")
	cmd.Flags().StringSliceVar(&opts.RequiredCerts, "certs", nil, "required crew certifications")
	return cmd
}

func ruleListCmd() *cobra.Command {
	var resourceID string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules for a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rules, err := e.RulesForResource(ctx, resourceID, activeOnly)
				if err != nil {
					return err
				}
				return printJSONOrTable(rules)
			})
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource id")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active rules")
	return cmd
}

func ruleToggleCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Enable or disable a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.SetRuleActive(ctx, args[0], active, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "rule active state")
	return cmd
}

func crewCmd() *cobra.Command {
	crew := &cobra.Command{Use: "crew", Short: "Manage crew members"}
	crew.AddCommand(crewCreateCmd())
	crew.AddCommand(crewListCmd())
	return crew
}

func crewCreateCmd() *cobra.Command {
	var id, name string
	var certs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a crew member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				m, err := e.CreateCrewMember(ctx, id, name, certs)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "crew member id")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringSliceVar(&certs, "certs", nil, "certifications")
	return cmd
}

func crewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List crew members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCrewMembers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Notifications"}
	n.AddCommand(notifyListCmd())
	n.AddCommand(notifyReadCmd())
	n.AddCommand(notifyReadAllCmd())
	n.AddCommand(notifyUnreadCmd())
	return n
}

func notifyListCmd() *cobra.Command {
	var recipient, bookingID string
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Notify.List(ctx, repo.NotificationFilters{
					Recipient: recipient,
					BookingID: bookingID,
					Unread:    unread,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Seq", "Booking", "Action", "Message", "Created"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Seq, it.BookingID, it.Action, it.Message, it.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient filter")
	cmd.Flags().StringVar(&bookingID, "booking", "", "booking filter")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func notifyReadCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if recipient == "" {
				return fmt.Errorf("--recipient required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Notify.MarkRead(ctx, args[0], recipient)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient")
	return cmd
}

func notifyReadAllCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recipient == "" {
				return fmt.Errorf("--recipient required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Notify.MarkAllRead(ctx, recipient)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient")
	return cmd
}

func notifyUnreadCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Unread notification count",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recipient == "" {
				return fmt.Errorf("--recipient required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				n, err := e.Notify.UnreadCount(ctx, recipient)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"unread": n})
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The ledger of everything that happened: bookings, status changes, crew moves. Event IDs double as sync tokens.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, resourceID, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, resourceID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func syncCmd() *cobra.Command {
	var remote, resourceID string
	var after int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull ledger deltas once and report state",
		Long:  "Pulls events after the given token from the local ledger or a remote server. State is connected after a clean pull, disconnected after a failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var source syncer.Source
				if remote != "" {
					source = syncer.HTTPSource{Client: &tidelinesdk.Client{BaseURL: remote, APIKey: os.Getenv("TIDELINE_API_KEY")}, ResourceID: resourceID}
				} else {
					source = syncer.LocalSource{Repo: e.Repo, ResourceID: resourceID}
				}
				coord := syncer.New(source)
				coord.SetCursor(after)
				var pulled []domain.Event
				coord.Handler = func(evt domain.Event) error {
					pulled = append(pulled, evt)
					return nil
				}
				err := coord.SyncOnce(ctx)
				out := map[string]any{
					"status": coord.Status(),
					"events": pulled,
				}
				if printErr := printJSONOrTable(out); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "remote server base URL (default: local ledger)")
	cmd.Flags().StringVar(&resourceID, "resource", "", "resource filter")
	cmd.Flags().Int64Var(&after, "after", 0, "sync token to pull after")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show operator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				counts, err := e.Repo.CountBookingsByStatus(ctx, "")
				if err != nil {
					return err
				}
				latest, err := e.Repo.LatestEventID(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"operator_id":     e.Config.Operator.ID,
					"booking_counts":  counts,
					"latest_event_id": latest,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Operator: %s\n", e.Config.Operator.ID)
				fmt.Printf("Latest event: %d\n", latest)
				fmt.Println("Bookings:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect operator config",
		Long:  "Config is tideline.yml: operator identity, booking defaults, sync cadence, default notification recipients, and override roles.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var operatorID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tideline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if operatorID == "" {
				operatorID = "local-operator"
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(operatorID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator id")
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config YAML into the workspace DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.UpsertOperatorConfig(ctx, cfg.Operator.ID, cfg)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config yaml path")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "Role management"}
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(rbacRolesCmd())
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.EnsureActor(ctx, target, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				return r.AssignRole(ctx, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.RevokeRole(ctx, target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role")
	return cmd
}

func rbacRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles <actor-id>",
		Short: "List an actor's roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				roles, err := r.ActorRoles(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": args[0], "roles": roles})
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (raw key shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw, key, err := engine.NewAPIKey(actorID, name)
				if err != nil {
					return err
				}
				if err := r.EnsureActor(ctx, actorID, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"key":      raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withSync bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveConfig(cmd.Context(), workspace, viper.GetString("operator"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TIDELINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TIDELINE_JWT_SECRET is required for bearer auth")
			}
			var coord *syncer.Coordinator
			if withSync {
				coord = syncer.New(syncer.LocalSource{Repo: r})
				coord.Interval = cfg.SyncInterval()
				coord.Timeout = cfg.PullTimeout()
				coord.Batch = cfg.Sync.BatchSize
				go coord.Run(cmd.Context())
			}
			handler, err := server.New(server.Config{Engine: e, Sync: coord, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Tideline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&withSync, "sync", true, "run the polling sync coordinator")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveConfig(ctx, workspace, viper.GetString("operator"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
