// Command mqttier publishes, subscribes and issues requests against an
// MQTT 5.0 broker.
//
//	mqttier [-config file] pub -t topic -m message [-q qos] [-r]
//	mqttier [-config file] sub -t filter [-q qos] [-n count]
//	mqttier [-config file] req -t topic -m message [-timeout 10s]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/vitalvas/mqttier"
	"github.com/vitalvas/mqttier/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("mqttier", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "YAML configuration file")
	server := global.String("server", "", "broker URL, overrides the configuration")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command: pub, sub or req")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *server != "" {
		cfg.Servers = []string{*server}
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "pub":
		return runPub(ctx, cfg, cmdArgs, stdout, stderr)
	case "sub":
		return runSub(ctx, cfg, cmdArgs, stdout, stderr)
	case "req":
		return runReq(ctx, cfg, cmdArgs, stdout, stderr)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadConfig(path string) (*mqttier.Config, error) {
	if path == "" {
		cfg := mqttier.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return mqttier.LoadConfig(path)
}

// connect builds the client from cfg, wiring the logger and the session
// store the configuration selects.
func connect(ctx context.Context, cfg *mqttier.Config, stderr io.Writer, extra ...mqttier.Option) (*mqttier.Client, func(), error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}

	level, _ := mqttier.ParseLogLevel(cfg.Logging.Level)
	color.NoColor = color.NoColor || !cfg.Logging.Color
	slogger := slog.New(newConsoleHandler(stderr, slog.LevelDebug))
	opts = append(opts, mqttier.WithLogger(mqttier.NewSlogLogger(slogger, level)))

	cleanup := func() {}
	if cfg.Session.Store == mqttier.SessionStoreSQLite {
		store, err := sqlite.Open(cfg.Session.Path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, mqttier.WithSessionStore(store))
		cleanup = func() { _ = store.Close() }
	}
	opts = append(opts, extra...)

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout+1)*time.Second)
	defer cancel()

	client, err := mqttier.DialContext(connectCtx, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, func() {
		_ = client.Close()
		cleanup()
	}, nil
}

func runPub(ctx context.Context, cfg *mqttier.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	topic := fs.String("t", "", "topic")
	message := fs.String("m", "", "message payload")
	qos := fs.Uint("q", 0, "QoS level (0, 1 or 2)")
	retain := fs.Bool("r", false, "retain the message")
	contentType := fs.String("content-type", "", "content type property")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return errors.New("pub: -t is required")
	}

	client, closeFn, err := connect(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	msg := &mqttier.Message{
		Topic:       *topic,
		Payload:     []byte(*message),
		QoS:         byte(*qos),
		Retain:      *retain,
		ContentType: *contentType,
	}
	if err := client.Publish(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintln(stdout, color.GreenString("published to %s", *topic))
	return nil
}

func runSub(ctx context.Context, cfg *mqttier.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	filter := fs.String("t", "#", "topic filter")
	qos := fs.Uint("q", 0, "QoS level (0, 1 or 2)")
	count := fs.Int("n", 0, "exit after this many messages, 0 for no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, closeFn, err := connect(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	messages := mqttier.NewBlockingChanHandler(64)
	if _, err := client.Subscribe(ctx, *filter, byte(*qos), messages); err != nil {
		return err
	}

	for received := 0; *count == 0 || received < *count; received++ {
		select {
		case msg := <-messages.Messages():
			printMessage(stdout, msg)
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func runReq(ctx context.Context, cfg *mqttier.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("req", flag.ContinueOnError)
	fs.SetOutput(stderr)
	topic := fs.String("t", "", "request topic")
	message := fs.String("m", "", "request payload")
	responseTopic := fs.String("response-topic", "", "response topic, defaults to client/{id}/responses")
	timeout := fs.Duration("timeout", 10*time.Second, "time to wait for the response")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return errors.New("req: -t is required")
	}

	client, closeFn, err := connect(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	reqCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	tok, err := client.Request(reqCtx, &mqttier.Message{Topic: *topic, Payload: []byte(*message), QoS: 1}, *responseTopic, nil)
	if err != nil {
		return err
	}
	if err := tok.Wait(reqCtx); err != nil {
		tok.Cancel()
		return err
	}
	printMessage(stdout, tok.Message())
	return nil
}

func printMessage(w io.Writer, msg *mqttier.Message) {
	fmt.Fprintf(w, "%s %s\n", color.YellowString(msg.Topic), msg.Payload)
	for _, up := range msg.UserProperties {
		fmt.Fprintf(w, "  %s=%s\n", color.CyanString(up.Key), up.Value)
	}
}
