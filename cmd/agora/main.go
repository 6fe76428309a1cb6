package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/app"
	"github.com/softwerkskammer/Agora-sub000/internal/config"
	"github.com/softwerkskammer/Agora-sub000/internal/db"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/registration"
	"github.com/softwerkskammer/Agora-sub000/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora activity registration",
	Long: `Agora manages activities, their resources and who is registered for them.
- Activity: an event with one or more resources, addressed by its url.
- Resource: a named capacity pool of an activity (a room type, a track). A limit caps registrations.
- Waitinglist: members queue on a full or closed resource and get a window of hours to register.
- Versions: every save checks the stored version, concurrent writers get "conflicting versions" and retry.
- SoCraTes: reservations and registrations kept as an event log, see 'agora socrates'.`,
	SilenceUsage: true,
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
	viper.SetEnvPrefix("AGORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (holds agora.yml and .agora/)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("driver", "", "document storage driver: sqlite or postgres (overrides config)")
	rootCmd.PersistentFlags().String("dsn", "", "postgres dsn (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(waitinglistCmd())
	rootCmd.AddCommand(socratesCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect agora.yml",
		Long:  "agora.yml sets timezone, storage, registration retries, SoCraTes windows and limits, server and logging. Flags and AGORA_* variables override it.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default agora.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
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
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var m member.Member
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				existing, err := a.Members.ByNickname(ctx, m.Nickname)
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("nickname %s already in use", m.Nickname)
				}
				if err := a.Members.Save(ctx, &m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&m.Nickname, "nickname", "", "nickname (required)")
	cmd.Flags().StringVar(&m.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&m.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&m.Email, "email", "", "email")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				list, err := a.Members.All(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Nickname", "Name", "Email"})
				for _, m := range list {
					tw.AppendRow(table.Row{m.ID, m.Nickname, m.DisplayName(), m.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage activities and registrations"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityCloneCmd())
	act.AddCommand(activityRegisterCmd())
	act.AddCommand(activityUnregisterCmd())
	act.AddCommand(activityWaitCmd())
	act.AddCommand(activityUnwaitCmd())
	act.AddCommand(activityPromoteCmd())
	act.AddCommand(activityAddonCmd())
	return act
}

type resourceFlags struct {
	names, limits []string
	open, waiting bool
}

func (r resourceFlags) values(v url.Values, defaultName string) {
	names := r.names
	if len(names) == 0 {
		names = []string{defaultName}
	}
	for i, name := range names {
		limit := ""
		if i < len(r.limits) {
			limit = r.limits[i]
		}
		v.Add("resources[names]", name)
		v.Add("resources[previousNames]", "")
		v.Add("resources[limits]", limit)
		v.Add("resources[isRegistrationOpen]", checkbox(r.open))
		v.Add("resources[hasWaitinglist]", checkbox(r.waiting))
	}
}

func checkbox(v bool) string {
	if v {
		return "on"
	}
	return ""
}

func activityCreateCmd() *cobra.Command {
	var (
		res   resourceFlags
		owner string
	)
	fields := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v := url.Values{}
				for key, val := range fields {
					v.Set(key, *val)
				}
				res.values(v, a.Config.Registration.DefaultResource)
				act := activity.NewEmpty().FillFromUI(activity.FormFromValues(v), a.Location)
				act.SetOwner(owner)
				if err := act.Validate(); err != nil {
					return err
				}
				existing, err := a.Activities.GetActivity(ctx, act.URL())
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("url %s already in use", act.URL())
				}
				if err := a.Activities.SaveActivity(ctx, act); err != nil {
					return err
				}
				return printActivity(act, a.Location)
			})
		},
	}
	for _, f := range []struct{ key, flag, usage string }{
		{"url", "url", "url (default derived from group, title and start)"},
		{"title", "title", "title (required)"},
		{"description", "description", "description"},
		{"location", "location", "location"},
		{"direction", "direction", "directions to the location"},
		{"assignedGroup", "group", "assigned group id"},
		{"startDate", "start-date", "start date, 2006-01-02 or 2.1.2006"},
		{"startTime", "start-time", "start time, 15:04"},
		{"endDate", "end-date", "end date"},
		{"endTime", "end-time", "end time"},
	} {
		fields[f.key] = cmd.Flags().String(f.flag, "", f.usage)
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner member id")
	cmd.Flags().StringSliceVar(&res.names, "resource", nil, "resource names (default from config)")
	cmd.Flags().StringSliceVar(&res.limits, "limit", nil, "limits, positional to --resource; empty for unlimited")
	cmd.Flags().BoolVar(&res.open, "open", true, "open resources for registration")
	cmd.Flags().BoolVar(&res.waiting, "waitinglist", false, "offer a waitinglist")
	return cmd
}

func activityListCmd() *cobra.Command {
	var (
		filter string
		groups []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now()
				var (
					list []*activity.Activity
					err  error
				)
				switch {
				case len(groups) > 0:
					list, err = a.Activities.UpcomingActivitiesForGroupIDs(ctx, groups, now)
				case filter == "past":
					list, err = a.Activities.PastActivities(ctx, now)
				case filter == "all":
					list, err = a.Activities.AllActivities(ctx)
				case filter == "upcoming":
					list, err = a.Activities.UpcomingActivities(ctx, now)
				default:
					return fmt.Errorf("--filter must be upcoming, past or all")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"URL", "Title", "Start", "Group", "Resources", "Registered"})
				for _, act := range list {
					tw.AppendRow(table.Row{
						act.URL(),
						act.Title(),
						act.StartMoment(a.Location).Format("2006-01-02 15:04"),
						act.AssignedGroup(),
						strings.Join(act.ResourceNames(), ", "),
						len(act.AllRegisteredMembers()),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "upcoming", "upcoming, past or all")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "only upcoming activities of these groups")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <url>",
		Short: "Show activity with its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				act, err := requireActivity(ctx, a, args[0])
				if err != nil {
					return err
				}
				return printActivity(act, a.Location)
			})
		},
	}
}

func activityCloneCmd() *cobra.Command {
	var newURL, startDate, startTime, endDate, endTime string
	cmd := &cobra.Command{
		Use:   "clone <url>",
		Short: "Create a new activity from an existing one, without registrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				original, err := requireActivity(ctx, a, args[0])
				if err != nil {
					return err
				}
				clone := original.ResetForClone()
				clone.FillFromUI(activity.Form{
					URL:           newURL,
					Title:         clone.Title(),
					Description:   clone.Description(),
					Location:      clone.Location(),
					Direction:     clone.Direction(),
					AssignedGroup: original.AssignedGroup(),
					StartDate:     startDate,
					StartTime:     startTime,
					EndDate:       endDate,
					EndTime:       endTime,
				}, a.Location)
				if err := clone.Validate(); err != nil {
					return err
				}
				if err := a.Activities.SaveActivity(ctx, clone); err != nil {
					return err
				}
				return printActivity(clone, a.Location)
			})
		},
	}
	cmd.Flags().StringVar(&newURL, "url", "", "url of the copy")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date of the copy")
	cmd.Flags().StringVar(&startTime, "start-time", "", "start time of the copy")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date of the copy")
	cmd.Flags().StringVar(&endTime, "end-time", "", "end time of the copy")
	return cmd
}

type registrationOp func(s *registration.Service, ctx context.Context, memberID, url, resource string) (registration.Result, error)

func registrationCmd(use, short string, op registrationOp) *cobra.Command {
	var memberID, resource string
	cmd := &cobra.Command{
		Use:   use + " <url>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if resource == "" {
					resource = a.Config.Registration.DefaultResource
				}
				res, err := op(a.Registration, ctx, memberID, args[0], resource)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	cmd.Flags().StringVar(&resource, "resource", "", "resource name (default from config)")
	return cmd
}

func activityRegisterCmd() *cobra.Command {
	return registrationCmd("register", "Register a member for a resource", (*registration.Service).AddVisitorTo)
}

func activityUnregisterCmd() *cobra.Command {
	return registrationCmd("unregister", "Deregister a member from a resource", (*registration.Service).RemoveVisitorFrom)
}

func activityWaitCmd() *cobra.Command {
	return registrationCmd("wait", "Put a member on the waitinglist of a resource", (*registration.Service).AddToWaitinglist)
}

func activityUnwaitCmd() *cobra.Command {
	return registrationCmd("unwait", "Take a member off the waitinglist of a resource", (*registration.Service).RemoveFromWaitinglist)
}

func activityPromoteCmd() *cobra.Command {
	var hours string
	cmd := registrationCmd("promote", "Give a waiting member a window of hours to register",
		func(s *registration.Service, ctx context.Context, memberID, url, resource string) (registration.Result, error) {
			return s.SetRegistrationValidity(ctx, memberID, url, resource, hours)
		})
	cmd.Flags().StringVar(&hours, "hours", "", "hours the member may register; empty closes the window")
	return cmd
}

func activityAddonCmd() *cobra.Command {
	var memberID string
	var addon activity.Addon
	cmd := &cobra.Command{
		Use:   "addon <url>",
		Short: "Store a participant's addon answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if memberID == "" {
				return fmt.Errorf("--member required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Registration.FillAddon(ctx, memberID, args[0], addon)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	cmd.Flags().StringVar(&addon.HomeAddress, "home-address", "", "home address")
	cmd.Flags().StringVar(&addon.BillingAddress, "billing-address", "", "billing address")
	cmd.Flags().StringVar(&addon.TShirtSize, "tshirt", "", "t-shirt size")
	cmd.Flags().StringVar(&addon.Roommate, "roommate", "", "preferred roommate")
	cmd.Flags().StringVar(&addon.Remarks, "remarks", "", "remarks")
	return cmd
}

func waitinglistCmd() *cobra.Command {
	wl := &cobra.Command{Use: "waitinglist", Short: "Standalone waitinglist entries"}
	wl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Waitinglist.Waitinglist(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Registrant", "Activity", "Resource", "Since", "Valid until"})
				for _, e := range entries {
					until := ""
					if e.RegistrationValidUntil != nil {
						until = e.RegistrationValidUntil.In(a.Location).Format("2006-01-02 15:04")
					}
					tw.AppendRow(table.Row{e.Registrant, e.ActivityName, e.ResourceName, e.RegistrationDate.In(a.Location).Format("2006-01-02 15:04"), until})
				}
				tw.Render()
				return nil
			})
		},
	})

	var nickname, activityURL, resource, memberID, hours string
	add := &cobra.Command{
		Use:   "add",
		Short: "Queue a member by nickname",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := a.Waitinglist.SaveWaitinglistEntry(ctx, nickname, activityURL, resource)
				if err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	}
	add.Flags().StringVar(&nickname, "nickname", "", "member nickname")
	add.Flags().StringVar(&activityURL, "activity", "", "activity url")
	add.Flags().StringVar(&resource, "resource", "", "resource name")
	wl.AddCommand(add)

	can := &cobra.Command{
		Use:   "can-subscribe",
		Short: "Whether the member may register now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Waitinglist.CanSubscribe(ctx, memberID, activityURL, resource)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]bool{"can_subscribe": ok})
			})
		},
	}
	can.Flags().StringVar(&memberID, "member", "", "member id")
	can.Flags().StringVar(&activityURL, "activity", "", "activity url")
	can.Flags().StringVar(&resource, "resource", "", "resource name")
	wl.AddCommand(can)

	validity := &cobra.Command{
		Use:   "validity",
		Short: "Set the registration window of an entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := a.Waitinglist.SetRegistrationValidity(ctx, memberID, activityURL, resource, hours)
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("no waitinglist entry for %s on %s/%s", memberID, activityURL, resource)
				}
				return printJSONOrTable(e)
			})
		},
	}
	validity.Flags().StringVar(&memberID, "member", "", "member id")
	validity.Flags().StringVar(&activityURL, "activity", "", "activity url")
	validity.Flags().StringVar(&resource, "resource", "", "resource name")
	validity.Flags().StringVar(&hours, "hours", "", "hours; empty closes the window")
	wl.AddCommand(validity)
	return wl
}

func socratesCmd() *cobra.Command {
	s := &cobra.Command{Use: "socrates", Short: "Event-sourced conference registration"}
	var roomType, sessionID, memberID string
	addFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&roomType, "room-type", "", "room type")
		c.Flags().StringVar(&sessionID, "session", "", "session id")
		c.Flags().StringVar(&memberID, "member", "", "member id")
	}
	reserve := &cobra.Command{
		Use:   "reserve",
		Short: "Issue a reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := a.Socrates.IssueReservation(ctx, roomType, sessionID, memberID)
				if err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	}
	addFlags(reserve)
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := a.Socrates.RegisterParticipant(ctx, roomType, sessionID, memberID)
				if err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	}
	addFlags(register)
	views := &cobra.Command{
		Use:   "views",
		Short: "Show reservations and registrations per room type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, _, err := a.Socrates.Load(ctx)
				if err != nil {
					return err
				}
				now := time.Now()
				roomTypes := p.RoomTypes()
				if roomType != "" {
					roomTypes = []string{roomType}
				}
				if viper.GetBool("json") {
					out := map[string]any{}
					for _, rt := range roomTypes {
						out[rt] = p.Views(rt, now)
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Room type", "Kind", "Session", "Member", "At"})
				for _, rt := range roomTypes {
					for _, v := range p.Views(rt, now) {
						tw.AppendRow(table.Row{rt, v.Kind, v.SessionID, v.MemberID, v.Timestamp.In(a.Location).Format(time.RFC3339)})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	views.Flags().StringVar(&roomType, "room-type", "", "only this room type")
	s.AddCommand(reserve, register, views)
	return s
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving Agora API (OpenAPI at /openapi.json, Swagger UI at /docs)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

// loadConfig reads agora.yml from the workspace, falling back to defaults,
// and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.Storage.Workspace == "" || cfg.Storage.Workspace == "." {
		cfg.Storage.Workspace = workspace
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := db.EnsureWorkspace(cfg.Storage.Workspace); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, cfg, app.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireActivity(ctx context.Context, a *app.App, url string) (*activity.Activity, error) {
	act, err := a.Activities.GetActivity(ctx, url)
	if err != nil {
		return nil, err
	}
	if act == nil {
		return nil, fmt.Errorf("%w: %s", registration.ErrActivityNotFound, url)
	}
	return act, nil
}

func printActivity(act *activity.Activity, loc *time.Location) error {
	if viper.GetBool("json") {
		return printJSON(act)
	}
	fmt.Printf("%s (%s)\n%s - %s\n", act.Title(), act.URL(), act.StartMoment(loc).Format("2006-01-02 15:04"), act.EndMoment(loc).Format("2006-01-02 15:04"))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Resource", "Limit", "Open", "Waitinglist", "Registered", "Waiting"})
	for _, name := range act.ResourceNames() {
		r := act.ResourceNamed(name)
		limit := "-"
		if l, ok := r.Limit(); ok {
			limit = fmt.Sprint(l)
		}
		tw.AppendRow(table.Row{name, limit, r.IsRegistrationOpen(), r.HasWaitinglist(), len(r.RegisteredMembers()), len(r.WaitinglistEntries())})
	}
	tw.Render()
	return nil
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
