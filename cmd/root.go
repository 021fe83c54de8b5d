// Package cmd implements the fancyterm command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/fancyterm/internal/config"
	"github.com/zjrosen/fancyterm/internal/events"
	"github.com/zjrosen/fancyterm/internal/history"
	"github.com/zjrosen/fancyterm/internal/infrastructure/sqlite"
	"github.com/zjrosen/fancyterm/internal/log"
	"github.com/zjrosen/fancyterm/internal/process"
	"github.com/zjrosen/fancyterm/internal/pubsub"
	"github.com/zjrosen/fancyterm/internal/session"
	"github.com/zjrosen/fancyterm/internal/tracing"
	"github.com/zjrosen/fancyterm/internal/ui/console"
	"github.com/zjrosen/fancyterm/internal/watcher"
)

func init() {
	// Query the background color before the program starts so the OSC 11
	// reply cannot land in the input line.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version    = "dev"
	cfgFile    string
	configPath string
	cfg        config.Config
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "fancyterm <command> [flags] [-- args...]",
		Short: "Run a command in an interactive console",
		Long: `fancyterm runs a command and streams its output into a scrolling console
while you type lines to its standard input.

Lines starting with ! run through the shell, "clear" or "cls" empties the
output and "exit" closes the console. Everything after -- is passed to the
command unchanged.`,
		Version:           version,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		RunE:              runApp,
	}

	c.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/fancyterm/config.yaml)")
	c.PersistentFlags().Bool("debug", false, "write a debug log (also FANCYTERM_DEBUG)")
	c.Flags().String("title", "", "window title (default: command name)")
	c.Flags().String("icon", "", "icon shown before the title")
	c.Flags().Bool("on-top", false, "pin the window for this run")

	return c
}

func initConfig(_ *cobra.Command, _ []string) error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .fancyterm/config.yaml (current directory)
		// 2. ~/.config/fancyterm/config.yaml (user config)
		if _, err := os.Stat(".fancyterm/config.yaml"); err == nil {
			v.SetConfigFile(".fancyterm/config.yaml")
		} else if dir := config.Dir(); dir != "" {
			v.AddConfigPath(dir)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound) && cfgFile == "":
			// nothing found anywhere: write the commented default
			if defaultPath := config.DefaultConfigPath(); defaultPath != "" {
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					v.SetConfigFile(defaultPath)
					_ = v.ReadInConfig()
				}
			}
		case cfgFile != "" && (errors.Is(err, os.ErrNotExist) || errors.As(err, &notFound)):
			// an explicit --config that does not exist yet is created on first save
		default:
			return fmt.Errorf("reading config: %w", err)
		}
	}

	configPath = v.ConfigFileUsed()
	if configPath == "" {
		configPath = cfgFile
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return cfg.Validate()
}

func invocationFromCmd(c *cobra.Command, args []string) (Invocation, error) {
	title, _ := c.Flags().GetString("title")
	icon, _ := c.Flags().GetString("icon")
	onTop, _ := c.Flags().GetBool("on-top")
	return parseInvocation(args, c.ArgsLenAtDash(), title, icon, onTop)
}

func runApp(c *cobra.Command, args []string) error {
	inv, err := invocationFromCmd(c, args)
	if err != nil {
		_ = c.Usage()
		return err
	}

	debugFlag, _ := c.Flags().GetBool("debug")
	if os.Getenv("FANCYTERM_DEBUG") != "" || debugFlag {
		logPath := os.Getenv("FANCYTERM_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.InitWithTeaLog(logPath, "fancyterm")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
		log.Info(log.CatConfig, "fancyterm starting", "version", version, "config", configPath, "command", inv.Command)
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Tracing shutdown failed", err)
		}
	}()

	store, closeStore := openHistory(cfg.History)
	defer closeStore()

	prefs := cfg.Preferences()
	if inv.OnTop {
		prefs.AlwaysOnTop = true
	}

	queue := events.NewQueue()
	supOpts := []process.Option{
		process.WithTracer(provider.Tracer()),
		process.WithDrainTimeout(cfg.Process.DrainTimeout),
	}
	if len(cfg.Process.Shell) > 0 {
		supOpts = append(supOpts, process.WithShell(cfg.Process.Shell))
	}
	sup := process.NewSupervisor(queue, supOpts...)
	defer func() {
		// the console normally stops every child; this covers an aborted program
		for _, h := range sup.Active() {
			sup.Kill(h)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewBroker[config.Preferences]()
	defer broker.Close()
	stopWatch := watchConfig(ctx, configPath, prefs, broker)
	defer stopWatch()

	zone.NewGlobal()

	out := console.NewOutput(os.Stdout)
	model := console.New(console.Options{
		Session: session.Config{
			Command:          inv.Command,
			Args:             inv.Args,
			Interpreter:      cfg.Process.Interpreter,
			Env:              cfg.Process.Env,
			TerminateTimeout: cfg.Process.TerminateTimeout,
			Preferences:      prefs,
			History:          store,
			HistoryLimit:     cfg.History.MaxEntries,
		},
		Queue:       queue,
		Supervisor:  sup,
		Display:     cfg.Display,
		Title:       inv.Title,
		Icon:        inv.Icon,
		ConfigPath:  configPath,
		Preferences: broker,
		Alerts:      out,
	})

	p := tea.NewProgram(
		model,
		tea.WithOutput(out),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// openHistory opens the persistent history store. Failures are logged and
// the session runs with in-memory history only.
func openHistory(hc config.HistoryConfig) (history.Store, func()) {
	noop := func() {}
	if !hc.Persist {
		return nil, noop
	}
	path := config.ExpandHome(hc.Path)
	if path == "" {
		return nil, noop
	}
	db, err := sqlite.NewDB(path)
	if err != nil {
		log.ErrorErr(log.CatHistory, "Opening history failed", err, "path", path)
		return nil, noop
	}
	return db.HistoryRepository(hc.MaxEntries), func() {
		if err := db.Close(); err != nil {
			log.ErrorErr(log.CatHistory, "Closing history failed", err)
		}
	}
}

// watchConfig publishes preference changes made to the config file while
// the console runs. It returns a stop function; watching is skipped when
// there is no config file.
func watchConfig(ctx context.Context, path string, prefs config.Preferences, broker *pubsub.Broker[config.Preferences]) func() {
	if path == "" {
		return func() {}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	w, err := watcher.New(watcher.DefaultConfig(abs))
	if err != nil {
		log.Warn(log.CatWatcher, "Config watcher unavailable", "error", err)
		return func() {}
	}
	changes, err := w.Start()
	if err != nil {
		log.Warn(log.CatWatcher, "Config watcher unavailable", "error", err)
		_ = w.Stop()
		return func() {}
	}

	go watcher.Relay(ctx, changes, prefs, func() (config.Preferences, error) {
		return config.LoadPreferences(abs)
	}, broker)

	return func() { _ = w.Stop() }
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
