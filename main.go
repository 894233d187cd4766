package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"LabelPrinter/app/config"
	"LabelPrinter/app/database"
	"LabelPrinter/app/models"
	"LabelPrinter/app/security"
	"LabelPrinter/app/services"
	"LabelPrinter/app/websocket"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// App struct
type App struct {
	Config         *config.AppConfig
	ConfigPath     string
	LoggerService  *services.LoggerService
	HistoryLedger  *services.HistoryLedger
	PrinterService *services.PrinterService
	WSServer       *websocket.Server

	historyDB *database.HistoryDB
}

// NewApp loads configuration and wires every service
func NewApp() (*App, error) {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}

	exists, err := config.ConfigExists(configPath)
	if err != nil {
		return nil, err
	}
	var cfg *config.AppConfig
	if exists {
		cfg, err = config.LoadConfigFrom(configPath)
	} else {
		cfg, err = config.CreateDefaultConfig(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	app := &App{Config: cfg, ConfigPath: configPath}
	app.LoggerService = services.NewLoggerService(
		filepath.Join(cfg.System.DataPath, "logs"), cfg.Log.Level, cfg.Log.Format)
	if !exists {
		app.LoggerService.LogInfo("Default configuration created", configPath)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) initServices() error {
	logger := a.LoggerService.Logger()
	cfg := a.Config

	var store services.HistoryStore
	switch cfg.History.Backend {
	case "sqlite":
		db, err := database.OpenHistoryDB(cfg.History.SQLitePath)
		if err != nil {
			return err
		}
		a.historyDB = db
		store = db
	default:
		store = services.NewJSONFileStore(cfg.History.Path)
	}
	a.HistoryLedger = services.NewHistoryLedger(store, a.LoggerService.Named("history"))

	renderer, err := services.NewPDFRenderer(services.PDFRendererConfig{
		OutputDir: cfg.PDF.OutputDir,
		FontPath:  cfg.PDF.FontPath,
		Logger:    a.LoggerService.Named("pdf"),
	})
	if err != nil {
		return err
	}

	var viewer services.DocumentViewer = services.NoopViewer{}
	if cfg.PDF.OpenAfterRender {
		viewer = services.NewOSViewer()
	}

	encoder, err := services.NewEscPosEncoder(cfg.Printer.Encoding)
	if err != nil {
		return err
	}

	transportLogger := a.LoggerService.Named("transport")
	transports := services.NewTransportSet(
		services.NewNetworkTransport(cfg.Printer.NetworkDialTimeout(), transportLogger),
		services.NewBluetoothTransport(cfg.Printer.BluetoothChannel, cfg.Printer.BluetoothDialTimeout(), transportLogger),
		services.NewFileTransport(transportLogger),
	)

	defaultTarget, err := cfg.Printer.DefaultPrintTarget()
	if err != nil {
		return err
	}

	a.PrinterService = services.NewPrinterService(services.PrinterServiceConfig{
		Ledger:         a.HistoryLedger,
		Renderer:       renderer,
		Viewer:         viewer,
		Encoder:        encoder,
		Transports:     transports,
		DefaultTarget:  defaultTarget,
		TargetDefaults: cfg.Printer.TargetDefaults,
		Logger:         a.LoggerService.Named("printer"),
	})

	logger.Info("services initialized",
		zap.String("history_backend", cfg.History.Backend),
		zap.String("default_target", defaultTarget.Destination()),
		zap.String("encoding", encoder.Name()))
	return nil
}

// Serve runs the collaborator server until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	if !a.Config.Server.Enabled {
		a.LoggerService.LogWarning("Print server disabled in configuration")
		<-ctx.Done()
		return nil
	}

	a.WSServer = websocket.NewServer(websocket.ServerConfig{
		Port:       a.Config.Server.Port,
		APIKeyHash: a.Config.Server.APIKeyHash,
		MDNS:       a.Config.Server.MDNS,
		Logger:     a.LoggerService.Named("server"),
	}, a.PrinterService)
	a.PrinterService.OnUpdate(a.WSServer.BroadcastRun)

	errCh := make(chan error, 1)
	go func() {
		defer a.LoggerService.RecoverPanic()
		errCh <- a.WSServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.LoggerService.LogInfo("Stopping print server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.WSServer.Stop(shutdownCtx)
}

// Close releases the history database and flushes logs
func (a *App) Close() {
	if a.historyDB != nil {
		if err := a.historyDB.Close(); err != nil {
			a.LoggerService.LogError("Error closing history database", err)
		}
	}
	a.LoggerService.LogInfo("Application shutdown complete")
	a.LoggerService.Close()
}

func main() {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		app.LoggerService.CleanOldLogs(30)
		return app.Serve(ctx)
	case "print":
		return app.printCommand(args)
	case "history":
		return app.historyCommand(args)
	case "genkey":
		return app.genkeyCommand()
	default:
		return fmt.Errorf("unknown command %q (serve, print, history, genkey)", cmd)
	}
}

func (a *App) printCommand(args []string) error {
	fs := flag.NewFlagSet("print", flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	customer := fs.String("customer", "", "customer name")
	boxes := fs.Int("boxes", 1, "number of boxes")
	target := fs.String("target", "", "document, bluetooth, network or file")
	address := fs.String("address", "", "bluetooth address or output file")
	host := fs.String("host", "", "network printer host")
	port := fs.Int("port", 0, "network printer port")
	yes := fs.Bool("yes", false, "reprint without asking when the order was printed before")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := models.PrintRequest{
		OrderID:  *orderID,
		Customer: *customer,
		BoxCount: *boxes,
		Target:   models.PrintTarget{Address: *address, Host: *host, Port: *port},
	}
	if *target != "" {
		kind, err := models.ParseTransportKind(*target)
		if err != nil {
			return err
		}
		req.Target.Kind = kind
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := a.PrinterService.Submit(ctx, req)
	if err != nil {
		return err
	}
	if run.State == models.RunAwaitingConfirmation {
		proceed := *yes
		if !proceed {
			proceed = confirm(fmt.Sprintf("Order %s was already printed %d time(s). Print again?", run.OrderID, run.PriorPrints))
		}
		run, err = a.PrinterService.ConfirmDuplicate(ctx, run.ID, proceed)
		if err != nil {
			return err
		}
	}

	switch run.State {
	case models.RunCommitted:
		fmt.Printf("Printed %d label(s) for order %s\n", run.CopiesSent, run.OrderID)
		if run.ArtifactPath != "" {
			fmt.Println(run.ArtifactPath)
		}
	default:
		fmt.Printf("Print cancelled for order %s\n", run.OrderID)
	}
	return nil
}

func (a *App) historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dupes := fs.Bool("duplicates", false, "only list orders printed more than once")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if *dupes {
		fmt.Fprintln(w, "ORDER\tPRINTS")
		for id, n := range a.PrinterService.QueryDuplicates() {
			fmt.Fprintf(w, "%s\t%d\n", id, n)
		}
		return nil
	}

	fmt.Fprintln(w, "TIMESTAMP\tORDER\tCUSTOMER\tBOXES\tPRINTS")
	for _, row := range a.PrinterService.HistoryView() {
		marker := ""
		if row.Duplicate {
			marker = " (dup)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d%s\n",
			row.Timestamp, row.OrderID, row.Customer, row.BoxQty, row.PrintCount, marker)
	}
	return nil
}

func (a *App) genkeyCommand() error {
	key, err := security.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := security.HashAPIKey(key)
	if err != nil {
		return err
	}

	if err := config.SetAPIKeyHash(a.ConfigPath, hash); err != nil {
		return err
	}
	a.Config.Server.APIKeyHash = hash
	a.LoggerService.LogInfo("API key regenerated")
	fmt.Println(key)
	return nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}
