// Command kvrtbot is the gateway process's entry point: it wires config,
// storage, the chat-platform client, the worker pool, the command
// dispatcher, the update router, the child-process supervisor, the
// scheduler, and the webhook ingress server together, then serves until
// SIGINT/SIGTERM. It also exposes webhook-set/webhook-del/webhook-info
// subcommands for operating the Telegram webhook out of band, and
// extern-register for provisioning external command handlers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/childproc"
	"github.com/rlapz/kvrt-bot-sub000/internal/command"
	"github.com/rlapz/kvrt-bot-sub000/internal/config"
	"github.com/rlapz/kvrt-bot-sub000/internal/dispatch"
	"github.com/rlapz/kvrt-bot-sub000/internal/ingress"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
	"github.com/rlapz/kvrt-bot-sub000/internal/scheduler"
	"github.com/rlapz/kvrt-bot-sub000/internal/store"
	"github.com/rlapz/kvrt-bot-sub000/internal/telegram"
	"github.com/rlapz/kvrt-bot-sub000/internal/workerpool"
)

var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var rootCmd = &cobra.Command{
	Use:   "kvrtbot",
	Short: "A Telegram chat-bot gateway: webhook ingress, command dispatch, and a deferred-action scheduler.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(webhookSetCmd, webhookDelCmd, webhookInfoCmd, externRegisterCmd)

	for _, c := range []*cobra.Command{webhookSetCmd, webhookDelCmd, webhookInfoCmd} {
		c.Flags().Bool("drop-pending", false, "drop pending updates")
		if err := viper.BindPFlag("drop-pending", c.Flags().Lookup("drop-pending")); err != nil {
			panic(err)
		}
	}

	externRegisterCmd.Flags().String("description", "", "command description stored with the entry (not listed by /help, which shows builtins only)")
	externRegisterCmd.Flags().Bool("admin-only", false, "require admin privileges to invoke")
	externRegisterCmd.Flags().Bool("raw-json", false, "pass the raw update json to the child as its last argument")
	externRegisterCmd.Flags().Bool("import-sys-env", false, "include the gateway's own environment in the child's environment")
	for _, name := range []string{"description", "admin-only", "raw-json", "import-sys-env"} {
		if err := viper.BindPFlag(name, externRegisterCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DBFile, cfg.WorkerThreadsNum*2)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	chat, err := telegram.New(cfg.APIToken)
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}
	botID, botUsername, err := chat.Self()
	if err != nil {
		return fmt.Errorf("fetch bot identity: %w", err)
	}
	if cfg.BotID != 0 && cfg.BotID != botID {
		slog.Warn("kvrtbot: configured KVRT_BOT_ID does not match token identity", "configured", cfg.BotID, "actual", botID)
	}

	pool := workerpool.New(cfg.WorkerThreadsNum, cfg.WorkerJobsMax, metrics.Global())
	defer pool.Shutdown()

	children := childproc.New(bot.ChldItemsSize)

	reg := command.NewRegistry()
	dispatcher := command.NewDispatcher(reg, db, chat, children, metrics.Global(),
		botID, cfg.OwnerID, botUsername, cfg.CmdPath,
		command.SpawnEnv{
			RootDir:        cfg.CmdPath,
			TGAPI:          "https://api.telegram.org/bot" + cfg.APIToken,
			TGAPISecretKey: cfg.APISecret,
			DBPath:         cfg.DBFile,
			ImportSysEnv:   cfg.ImportSysEnv,
		})
	command.RegisterBuiltins(reg, dispatcher)

	router := dispatch.New(db, dispatcher, chat, botID, cfg.OwnerID, botUsername, "")

	sched := scheduler.New(db, pool, chat, metrics.Global())
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	hookHost, err := hostFromURL(cfg.HookURL)
	if err != nil {
		return fmt.Errorf("parse KVRT_HOOK_URL: %w", err)
	}

	srv := ingress.New(ingress.Config{
		ListenAddr:  cfg.Addr(),
		HookHost:    hookHost,
		HookPath:    cfg.HookPath,
		SecretToken: cfg.APISecret,
		MaxClients:  int64(bot.MaxClients),
	}, func(raw []byte) {
		handleWebhookBody(pool, router, botID, cfg.OwnerID, botUsername, raw)
	}, metrics.Global())

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, terminationSignals...)

	slog.Info("kvrtbot: ready", "addr", cfg.Addr(), "bot", botUsername)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ingress server: %w", err)
		}
	case <-sigCh:
		slog.Info("kvrtbot: shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("kvrtbot: ingress shutdown", "err", err)
	}
	sched.Stop(shutdownCtx)
	children.Shutdown(shutdownCtx)

	return nil
}

// hostFromURL extracts the host:port a configured webhook URL's Host
// header must match, so HookURL can be the full https:// URL used for
// SetWebhook while ingress compares against the bare request Host.
func hostFromURL(webhookURL string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

// handleWebhookBody decodes raw into a bot.Update and submits routing to
// the worker pool, keeping the ingress HTTP goroutine off the dispatch
// path per spec.md §4.1/§4.2.
func handleWebhookBody(pool *workerpool.Pool, router *dispatch.Router, botID, ownerID int64, botUsername string, raw []byte) {
	upd, err := telegram.DecodeUpdate(raw, botID, ownerID, botUsername)
	if err != nil {
		slog.Debug("kvrtbot: dropping undecodable update", "err", err)
		return
	}
	if err := pool.Submit(func(ctx context.Context, _ any) {
		if err := router.Route(ctx, upd); err != nil {
			slog.Warn("kvrtbot: route update", "update_id", upd.ID, "err", err)
		}
	}, nil); err != nil {
		slog.Warn("kvrtbot: submit route job", "update_id", upd.ID, "err", err)
	}
}

var webhookSetCmd = &cobra.Command{
	Use:   "webhook-set",
	Short: "Register the configured webhook URL with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		chat, err := telegram.New(cfg.APIToken)
		if err != nil {
			return err
		}
		dropPending, _ := cmd.Flags().GetBool("drop-pending")
		if err := chat.SetWebhook(cfg.HookURL, cfg.APISecret, dropPending); err != nil {
			return err
		}
		fmt.Println("webhook set:", cfg.HookURL)
		return nil
	},
}

var webhookDelCmd = &cobra.Command{
	Use:   "webhook-del",
	Short: "Remove the currently configured webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		chat, err := telegram.New(cfg.APIToken)
		if err != nil {
			return err
		}
		dropPending, _ := cmd.Flags().GetBool("drop-pending")
		if err := chat.DeleteWebhook(dropPending); err != nil {
			return err
		}
		fmt.Println("webhook deleted")
		return nil
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "webhook-info",
	Short: "Print the currently configured webhook's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		chat, err := telegram.New(cfg.APIToken)
		if err != nil {
			return err
		}
		info, err := chat.GetWebhookInfo()
		if err != nil {
			return err
		}
		fmt.Printf("url: %s\npending_update_count: %d\nhas_custom_certificate: %t\n",
			info.URL, info.PendingUpdateCount, info.HasCustomCertificate)
		if info.LastErrorMessage != "" {
			fmt.Printf("last_error_date: %d\nlast_error_message: %s\n", info.LastErrorDate, info.LastErrorMessage)
		}
		return nil
	},
}

// externRegisterCmd registers (or updates) a global external command entry
// in Cmd_Extern, the same table builtinExternToggle flips per-chat. This is
// an operator provisioning action, analogous to webhook-set, rather than a
// chat command: installing a new handler executable is out-of-band of any
// running chat.
var externRegisterCmd = &cobra.Command{
	Use:   "extern-register <name> <file_path>",
	Short: "Register or update a global external command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}

		name, filePath := args[0], args[1]
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}

		var argProfile bot.ExternArgProfile
		if viper.GetBool("raw-json") {
			argProfile |= bot.ExternArgRawJSON
		}
		if viper.GetBool("import-sys-env") {
			argProfile |= bot.ExternArgImportSysEnv
		}

		var flags bot.CmdFlag
		if viper.GetBool("admin-only") {
			flags |= bot.CmdFlagAdmin
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := store.Open(ctx, cfg.DBFile, 1)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		if err := db.UpsertExternalCommand(ctx, bot.ExternalCommand{
			Name:        name,
			FilePath:    filePath,
			ArgProfile:  argProfile,
			Flags:       flags,
			Description: viper.GetString("description"),
		}); err != nil {
			return fmt.Errorf("register external command: %w", err)
		}

		fmt.Println("registered:", name, "->", filePath)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("kvrtbot: fatal", "err", err)
		os.Exit(1)
	}
}
